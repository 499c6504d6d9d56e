package promptgen

// promptStyleGuide is shared by whole-schedule and single-scene
// generation so reworked prompts stay in the same register.
const promptStyleGuide = "Generate a concise, specific, and visually evocative art prompt " +
	"for an img2img model being applied to a single scene. " +
	"Reference concrete artistic styles, name real artists, avoiding the obvious ones, " +
	"include historical periods or genres, and make the image visually striking " +
	"or with fantasy/surreal elements. " +
	"Keep the prompt brief (less than one sentence) but vivid and distinct."

// fillSystemPrompt instructs the model to rewrite the prompt column of a
// scene schedule CSV in place.
const fillSystemPrompt = "**Your task**\n\n" +
	"You will be given a CSV file with columns: name, frame, prompt. " +
	"Your task is to produce a new CSV with the prompts in the prompt column replaced with new ones.\n\n" +
	"**Prompting guide**\n\n" +
	"For each scene: " + promptStyleGuide + "\n\n" +
	"**Output format**\n\n" +
	"Return a CSV with the same columns (name, frame, prompt) and the same rows, " +
	"but with the prompt column filled in with the newly generated prompts. " +
	"Answer only with the CSV header and rows, with no commentary or markdown."
