package commands

// Exported for testing.
var (
	RenderText = renderText
	RenderJSON = renderJSON
)
