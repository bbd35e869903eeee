package api

import "regexp"

// channelInstruction is appended to inbound channel messages so replies fit
// WhatsApp/SMS length limits.
const channelInstruction = "\n\n[Instruction: Keep your response under 1500 characters.]"

// processingErrorReply is sent when a background webhook turn fails before
// producing a reply.
const processingErrorReply = "Sorry, I encountered an error processing your query."

var imageLinkRE = regexp.MustCompile(`!\[[^\]]*\]\(([^)\s]+)\)`)

// extractImageLinks pulls markdown image links out of a reply, returning
// the remaining text and the image URLs in order. Channels deliver images
// as media attachments, not markdown.
func extractImageLinks(reply string) (string, []string) {
	matches := imageLinkRE.FindAllStringSubmatch(reply, -1)
	if len(matches) == 0 {
		return reply, nil
	}
	urls := make([]string, 0, len(matches))
	for _, m := range matches {
		urls = append(urls, m[1])
	}
	text := imageLinkRE.ReplaceAllString(reply, "")
	return trimBlankLines(text), urls
}

var blankRunRE = regexp.MustCompile(`\n{3,}`)

func trimBlankLines(s string) string {
	s = blankRunRE.ReplaceAllString(s, "\n\n")
	for len(s) > 0 && (s[0] == '\n' || s[0] == ' ') {
		s = s[1:]
	}
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == ' ') {
		s = s[:len(s)-1]
	}
	return s
}
