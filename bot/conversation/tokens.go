package conversation

import (
	"errors"
	"strings"
)

// TokenKind tells which button produced a callback.
type TokenKind int

const (
	TokenStudent TokenKind = iota + 1
	TokenTeacher
	TokenCheckSubscription
	TokenFaculty
	TokenCourse
	TokenGroup
	TokenBackFaculty
	TokenBackCourse
)

const (
	sep = "_"
	// Telegram rejects callback data longer than this many bytes.
	maxTokenBytes = 64
)

// ErrUnknownToken is returned for callback data outside the token grammar.
var ErrUnknownToken = errors.New("conversation: unknown callback token")

// Token is a decoded callback payload.
type Token struct {
	Kind    TokenKind
	Faculty string
	Course  string
	Group   string
}

// ParseToken decodes callback data. Identifiers may not contain "_", so a
// token with missing or extra parts is rejected.
func ParseToken(data string) (Token, error) {
	switch data {
	case "student":
		return Token{Kind: TokenStudent}, nil
	case "teacher":
		return Token{Kind: TokenTeacher}, nil
	case "check_subscription":
		return Token{Kind: TokenCheckSubscription}, nil
	case "back_faculty":
		return Token{Kind: TokenBackFaculty}, nil
	}

	prefix, rest, ok := strings.Cut(data, sep)
	if !ok {
		return Token{}, ErrUnknownToken
	}
	if prefix == "back" {
		prefix, rest, ok = strings.Cut(rest, sep)
		if !ok || prefix != "course" {
			return Token{}, ErrUnknownToken
		}
		parts, ok := split(rest, 1)
		if !ok {
			return Token{}, ErrUnknownToken
		}
		return Token{Kind: TokenBackCourse, Faculty: parts[0]}, nil
	}

	switch prefix {
	case "faculty":
		if parts, ok := split(rest, 1); ok {
			return Token{Kind: TokenFaculty, Faculty: parts[0]}, nil
		}
	case "course":
		if parts, ok := split(rest, 2); ok {
			return Token{Kind: TokenCourse, Faculty: parts[0], Course: parts[1]}, nil
		}
	case "group":
		if parts, ok := split(rest, 3); ok {
			return Token{Kind: TokenGroup, Faculty: parts[0], Course: parts[1], Group: parts[2]}, nil
		}
	}
	return Token{}, ErrUnknownToken
}

func split(s string, n int) ([]string, bool) {
	parts := strings.Split(s, sep)
	if len(parts) != n {
		return nil, false
	}
	for _, p := range parts {
		if p == "" {
			return nil, false
		}
	}
	return parts, true
}

// String encodes the token back into callback data.
func (t Token) String() string {
	switch t.Kind {
	case TokenStudent:
		return "student"
	case TokenTeacher:
		return "teacher"
	case TokenCheckSubscription:
		return "check_subscription"
	case TokenFaculty:
		return "faculty_" + t.Faculty
	case TokenCourse:
		return "course_" + t.Faculty + sep + t.Course
	case TokenGroup:
		return "group_" + t.Faculty + sep + t.Course + sep + t.Group
	case TokenBackFaculty:
		return "back_faculty"
	case TokenBackCourse:
		return "back_course_" + t.Faculty
	}
	return ""
}

// Encodable reports whether the token survives a round trip through
// callback data.
func (t Token) Encodable() bool {
	for _, id := range []string{t.Faculty, t.Course, t.Group} {
		if strings.Contains(id, sep) {
			return false
		}
	}
	data := t.String()
	return data != "" && len(data) <= maxTokenBytes
}
