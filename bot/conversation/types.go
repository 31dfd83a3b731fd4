// Package conversation implements the per-chat dialogue that narrows a
// timetable request down to a group or teacher and a day.
package conversation

import (
	"context"
	"errors"

	"github.com/smartschedule/schedulebot/bot/schedule"
	"github.com/smartschedule/schedulebot/core/telegram/keyboard"
)

// ErrBlocked marks outbound failures caused by the user blocking the bot.
// Messenger implementations wrap such errors with it.
var ErrBlocked = errors.New("conversation: recipient blocked the bot")

// Role is the branch a conversation follows.
type Role int

const (
	RoleUnset Role = iota
	RoleStudent
	RoleTeacher
)

func (r Role) String() string {
	switch r {
	case RoleStudent:
		return "student"
	case RoleTeacher:
		return "teacher"
	}
	return "unset"
}

// Pending tells how the next free-text message is read.
type Pending int

const (
	PendingNone Pending = iota
	PendingAdminSecret
	PendingTeacherCode
	PendingDay
)

func (p Pending) String() string {
	switch p {
	case PendingAdminSecret:
		return "admin_secret"
	case PendingTeacherCode:
		return "teacher_code"
	case PendingDay:
		return "day"
	}
	return "none"
}

// State is everything remembered about one chat. The zero value is a new
// conversation.
type State struct {
	Role    Role
	Faculty string
	Course  string
	Group   string
	// TeacherCode is set only after the service accepted it.
	TeacherCode string
	// AdminGate is armed by /admin and disarmed by the next message.
	AdminGate bool
}

// Pending derives the input the conversation waits for.
func (s State) Pending() Pending {
	switch {
	case s.AdminGate:
		return PendingAdminSecret
	case s.Role == RoleTeacher && s.TeacherCode == "":
		return PendingTeacherCode
	case s.Role == RoleTeacher, s.Role == RoleStudent && s.selectionComplete():
		return PendingDay
	}
	return PendingNone
}

func (s State) selectionComplete() bool {
	return s.Faculty != "" && s.Course != "" && s.Group != ""
}

func (s *State) chooseStudent() {
	s.Role = RoleStudent
	s.TeacherCode = ""
	s.Faculty, s.Course, s.Group = "", "", ""
}

func (s *State) chooseTeacher() {
	s.Role = RoleTeacher
	s.TeacherCode = ""
	s.Faculty, s.Course, s.Group = "", "", ""
}

// Event is one inbound update attributed to a chat and a user.
type Event struct {
	ChatID int64
	UserID int64
	// Text is set for messages.
	Text string
	// Data and MessageID are set for button callbacks.
	Data      string
	MessageID int
}

// Message is an outbound chat message. Text is HTML.
type Message struct {
	Text    string
	Buttons [][]keyboard.InlineBtn
	// ReplyKeyboard replaces the user's keyboard when set.
	ReplyKeyboard [][]string
}

// Document is an outbound file.
type Document struct {
	FileName string
	Caption  string
	Data     []byte
}

// Messenger delivers outbound operations to the chat.
type Messenger interface {
	Send(ctx context.Context, chatID int64, msg Message) error
	Delete(ctx context.Context, chatID int64, messageID int) error
	// SetMenuLink points the chat menu button at url; an empty url restores the default button.
	SetMenuLink(ctx context.Context, chatID int64, text, url string) error
	SendDocument(ctx context.Context, chatID int64, doc Document) error
}

// Schedule resolves timetable data.
type Schedule interface {
	Faculties(ctx context.Context) ([]string, error)
	Courses(ctx context.Context, faculty string) ([]string, error)
	Groups(ctx context.Context, faculty, course string) ([]string, error)
	Day(ctx context.Context, faculty, course, group, day string) (string, error)
	TeacherDay(ctx context.Context, code, day string) (string, error)
	CheckTeacherCode(ctx context.Context, code string) (string, bool, error)
	TeachersWithCodes(ctx context.Context) ([]schedule.Teacher, error)
	GroupLink(faculty, course, group string) string
	TeacherLink(code string) string
}

// Subscriptions checks channel membership.
type Subscriptions interface {
	IsMember(ctx context.Context, userID int64) (bool, error)
}

// Exporter renders the teacher list as a file.
type Exporter func(teachers []schedule.Teacher) ([]byte, error)
