package extract

import "strings"

const baseTextRules = `BASE TEXT
Transcribe the printed or typed text of the document.
- Include only the printed text. Leave out handwriting, marginalia, highlights and underlines.
- Keep every character, punctuation mark, space and line break as printed.
- Do not correct, reflow or normalize the text.
All indices you report refer to this transcription.`

const highlightRules = `HIGHLIGHTS
Report text covered by a transparent marker applied directly over the letters.
Do not report circled, boxed, underlined or bracketed text, text joined by arrows,
or text colored by pen ink.
- startIndex and endIndex are 0-based character offsets into the base text; endIndex is exclusive.
- backgroundColor is the marker color as #RRGGBB.
- highlightedText is the exact base text between startIndex and endIndex.`

const commentRules = `HANDWRITTEN COMMENTS
Report every handwritten note: marginal and interlinear notes, questions, symbols.
- Transcribe the handwriting as written; infer the most likely reading when unclear.
- Each distinct note is one item.
- startIndex and endIndex mark the printed phrase the note refers to, as 0-based
  character offsets into the base text; endIndex is exclusive.
- Never invent offsets unrelated to the printed text.`

const jsonOnly = `Return only JSON. No markdown, no explanations. Use empty arrays when nothing is found.`

const systemPreamble = `You are a vision assistant that extracts printed text, marker highlights and handwritten comments from images of annotated documents.`

// combinedPrompt asks for the whole extraction in one response.
var combinedPrompt = strings.Join([]string{
	systemPreamble,
	baseTextRules,
	highlightRules,
	commentRules,
	`OUTPUT
{"baseText": string,
 "highlights": [{"startIndex": number, "endIndex": number, "backgroundColor": "#RRGGBB", "highlightedText": string}],
 "comments": [{"startIndex": number, "endIndex": number, "commentText": string}]}`,
	jsonOnly,
}, "\n\n")

var baseTextPrompt = strings.Join([]string{
	systemPreamble,
	baseTextRules,
	`OUTPUT
{"baseText": string}`,
	jsonOnly,
}, "\n\n")

var highlightsPrompt = strings.Join([]string{
	systemPreamble,
	highlightRules,
	`OUTPUT
{"highlights": [{"startIndex": number, "endIndex": number, "backgroundColor": "#RRGGBB", "highlightedText": string}]}`,
	jsonOnly,
}, "\n\n")

var commentsPrompt = strings.Join([]string{
	systemPreamble,
	commentRules,
	`OUTPUT
{"comments": [{"startIndex": number, "endIndex": number, "commentText": string}]}`,
	jsonOnly,
}, "\n\n")

// withBaseText appends the transcription that offsets must refer to.
func withBaseText(baseText string) string {
	return "The base text of this document is given between the markers below. " +
		"Compute every offset against it.\n<<<BASE TEXT\n" + baseText + "\nBASE TEXT>>>"
}
