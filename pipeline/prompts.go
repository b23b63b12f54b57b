package pipeline

const TranscribeInstruction = "You are an expert technical transcriptionist. Transcribe the following audio verbatim and with high precision. " +
	"Pay close attention to technical terms, jargon, acronyms, product names and code identifiers, and spell them correctly. " +
	"Do not add commentary, summaries or formatting. Omit non-speech sounds and annotations such as [music], [laughter] or [inaudible]. " +
	"Return only the transcribed text."

const polishInstruction = `You are an expert technical writer. Take the raw transcription below and turn it into a clean, well-structured note in Markdown.

1. Correct transcription errors, grammar and punctuation while preserving the speaker's meaning and every technical detail.
2. Remove filler words (um, uh, like, you know), false starts and repetitions.
3. Structure the content with headings, bullet or numbered lists, and fenced code blocks where they help readability. Use task list items (- [ ]) for action items.
4. If the content has a clear topic, begin the note with a single level-1 heading (# Title) that summarizes it.
5. Return only the polished Markdown note, with no preamble or explanation.

Raw transcription:
`

// PolishPrompt is the full request text for polishing raw.
func PolishPrompt(raw string) string {
	return polishInstruction + raw
}
