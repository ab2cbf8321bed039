// Package transcript reconstructs readable transcripts from chat messages.
//
// Each message is classified twice: who sent it (customer, human agent or
// bot) and what it carries (text, audio with transcription, image, video,
// document or unsupported structure). Render joins classified messages into
// the plain text transcript handed to the evaluation panel.
package transcript
