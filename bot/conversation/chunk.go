package conversation

// maxEntityRunes bounds how far back a cut looks for an open "&...;" entity.
const maxEntityRunes = 10

// Chunk splits text into consecutive pieces of at most size runes. A piece
// ends after the last newline in its second half when there is one, so
// lines are rarely cut. A cut never lands inside an HTML tag or entity
// unless the tag alone exceeds size. Joining the pieces gives back text
// unchanged.
func Chunk(text string, size int) []string {
	if text == "" {
		return nil
	}
	runes := []rune(text)
	if size <= 0 || len(runes) <= size {
		return []string{text}
	}

	var out []string
	for len(runes) > size {
		cut := size
		for i := size - 1; i >= size/2; i-- {
			if runes[i] == '\n' {
				cut = i + 1
				break
			}
		}
		cut = markupSafeCut(runes, cut)
		out = append(out, string(runes[:cut]))
		runes = runes[cut:]
	}
	if len(runes) > 0 {
		out = append(out, string(runes))
	}
	return out
}

// markupSafeCut moves cut back to the start of an unclosed tag or entity
// that runs across it. The result is always positive.
func markupSafeCut(runes []rune, cut int) int {
	for i := cut - 1; i >= 0; i-- {
		if runes[i] == '>' {
			break
		}
		if runes[i] == '<' {
			if i > 0 {
				cut = i
			}
			break
		}
	}
	for i := cut - 1; i >= 0 && i >= cut-maxEntityRunes; i-- {
		if runes[i] == ';' || runes[i] == ' ' || runes[i] == '\n' {
			break
		}
		if runes[i] == '&' {
			if i > 0 {
				cut = i
			}
			break
		}
	}
	return cut
}
