package transform

// JSON exposes a data file as the module's exports. The body is not parsed;
// invalid JSON surfaces when the bundle is evaluated.
func JSON(body, _ string) (string, error) {
	return "module.exports = " + body + ";\n", nil
}
