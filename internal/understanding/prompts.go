package understanding

// Prompts for the batched summarization call. Uploaded files are referenced
// from system turns via the fileid:// token, so one request can
// cross-reference every document in the run.
const (
	systemRolePrompt = "You are a professional document analyst. You read the attached documents carefully and produce accurate, well-structured summaries for business readers."

	userPromptSingle = "Write a concise summary of the attached document. Cover its purpose, the key points, and any conclusions or action items."

	userPromptMulti = "Write a concise summary of the attached documents. Summarize each document separately under its own heading, then add a short section on how they relate to each other. Cover key points, conclusions, and action items."
)
