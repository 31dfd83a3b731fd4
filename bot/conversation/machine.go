package conversation

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/smartschedule/schedulebot/bot/schedule"
	"github.com/smartschedule/schedulebot/core/logger"
	"github.com/smartschedule/schedulebot/core/telegram/keyboard"
	"github.com/smartschedule/schedulebot/core/telegram/state"
)

const component = "conversation"

// Options wires a Machine to its collaborators.
type Options struct {
	Messenger     Messenger
	Schedule      Schedule
	Subscriptions Subscriptions
	Export        Exporter
	Days          *DayResolver

	AdminSecret string
	// ChannelURL backs the subscribe button of the subscription prompt.
	ChannelURL string
	// Contact is shown in the welcome and help texts when set.
	Contact string

	ChunkSize  int
	ChunkDelay time.Duration

	Shards int
	Clock  func() time.Time
}

// Machine routes inbound events through per-chat conversation state.
// Events of one chat are handled one at a time; chats never wait on each other.
type Machine struct {
	msg     Messenger
	sched   Schedule
	subs    Subscriptions
	export  Exporter
	days    *DayResolver
	secret  string
	channel string
	contact string

	chunkSize  int
	chunkDelay time.Duration

	store *state.Store[State]
}

// New builds a Machine. Messenger and Schedule are required.
func New(opts Options) *Machine {
	days := opts.Days
	if days == nil {
		days = NewDayResolver(time.Local, nil, opts.Clock)
	}
	chunk := opts.ChunkSize
	if chunk <= 0 {
		chunk = 4000
	}
	delay := opts.ChunkDelay
	if delay < 0 {
		delay = 0
	}
	storeOpts := []state.Option{state.WithShards(opts.Shards)}
	if opts.Clock != nil {
		storeOpts = append(storeOpts, state.WithClock(opts.Clock))
	}
	return &Machine{
		msg:        opts.Messenger,
		sched:      opts.Schedule,
		subs:       opts.Subscriptions,
		export:     opts.Export,
		days:       days,
		secret:     opts.AdminSecret,
		channel:    opts.ChannelURL,
		contact:    opts.Contact,
		chunkSize:  chunk,
		chunkDelay: delay,
		store:      state.New[State](nil, storeOpts...),
	}
}

// State returns a copy of the conversation state of chatID.
func (m *Machine) State(chatID int64) (State, bool) {
	return m.store.Peek(chatID)
}

// Conversations reports how many chats have state in memory.
func (m *Machine) Conversations() int {
	return m.store.Len()
}

// EvictIdle forgets chats idle since before. A returning chat starts over
// as a new conversation.
func (m *Machine) EvictIdle(before time.Time) int {
	return m.store.EvictIdle(before)
}

// HandleText processes a text message.
func (m *Machine) HandleText(ctx context.Context, ev Event) error {
	return m.store.Update(ev.ChatID, func(st *State) error {
		return m.onText(ctx, ev, st)
	})
}

// HandleCallback processes a button callback.
func (m *Machine) HandleCallback(ctx context.Context, ev Event) error {
	return m.store.Update(ev.ChatID, func(st *State) error {
		return m.onCallback(ctx, ev, st)
	})
}

func (m *Machine) onText(ctx context.Context, ev Event, st *State) error {
	if st.AdminGate {
		st.AdminGate = false
		return m.checkAdminSecret(ctx, ev)
	}

	switch ev.Text {
	case CmdStart:
		return m.restart(ctx, ev, st)
	case CmdHelp:
		m.send(ctx, ev.ChatID, Message{Text: helpText(m.contact)})
		return nil
	case CmdAdmin:
		st.AdminGate = true
		logger.Info(ctx, component, "admin.challenge")
		m.send(ctx, ev.ChatID, Message{Text: textAskAdminSecret})
		return nil
	}

	if st.Pending() == PendingTeacherCode {
		return m.checkTeacherCode(ctx, ev, st)
	}
	if strings.HasPrefix(ev.Text, "/") {
		logger.Info(ctx, component, "command.unknown",
			slog.String("status", "skip"),
			slog.String("op", logger.SanitizeLimit(ev.Text, 32)),
		)
		m.send(ctx, ev.ChatID, Message{Text: textUnknownCommand})
		return nil
	}
	return m.selectDay(ctx, ev, st)
}

func (m *Machine) onCallback(ctx context.Context, ev Event, st *State) error {
	if ev.MessageID != 0 {
		if err := m.msg.Delete(ctx, ev.ChatID, ev.MessageID); err != nil {
			if errors.Is(err, ErrBlocked) {
				logger.Info(ctx, component, "callback.blocked", slog.String("status", "skip"))
				return nil
			}
			logger.Warn(ctx, component, "callback.delete_failed",
				slog.Int("message_id", ev.MessageID),
				logger.Err(err),
			)
		}
	}

	tok, err := ParseToken(ev.Data)
	if err != nil {
		logger.Info(ctx, component, "callback.unknown",
			slog.String("status", "skip"),
			slog.String("cb_key", logger.SanitizeLimit(ev.Data, 64)),
		)
		return nil
	}

	switch tok.Kind {
	case TokenCheckSubscription:
		return m.checkSubscription(ctx, ev)
	case TokenStudent:
		faculties, err := m.lookupList(ctx, ev.ChatID, "faculties", func() ([]string, error) {
			return m.sched.Faculties(ctx)
		})
		if err != nil {
			return err
		}
		st.chooseStudent()
		logger.Info(ctx, component, "role.selected", slog.String("role", st.Role.String()))
		m.sendFaculties(ctx, ev.ChatID, faculties)
	case TokenTeacher:
		st.chooseTeacher()
		logger.Info(ctx, component, "role.selected", slog.String("role", st.Role.String()))
		m.send(ctx, ev.ChatID, Message{Text: textAskTeacherCode})
	case TokenFaculty:
		courses, err := m.lookupList(ctx, ev.ChatID, "courses", func() ([]string, error) {
			return m.sched.Courses(ctx, tok.Faculty)
		})
		if err != nil {
			return err
		}
		st.Role, st.TeacherCode = RoleStudent, ""
		st.Faculty, st.Course, st.Group = tok.Faculty, "", ""
		m.sendCourses(ctx, ev.ChatID, tok.Faculty, courses)
	case TokenCourse:
		groups, err := m.lookupList(ctx, ev.ChatID, "groups", func() ([]string, error) {
			return m.sched.Groups(ctx, tok.Faculty, tok.Course)
		})
		if err != nil {
			return err
		}
		st.Role, st.TeacherCode = RoleStudent, ""
		st.Faculty, st.Course, st.Group = tok.Faculty, tok.Course, ""
		m.sendGroups(ctx, ev.ChatID, tok.Faculty, tok.Course, groups)
	case TokenGroup:
		st.Role, st.TeacherCode = RoleStudent, ""
		st.Faculty, st.Course, st.Group = tok.Faculty, tok.Course, tok.Group
		logger.Info(ctx, component, "group.selected",
			slog.String("faculty", tok.Faculty),
			slog.String("course", tok.Course),
			slog.String("group", tok.Group),
		)
		m.setMenu(ctx, ev.ChatID, m.sched.GroupLink(tok.Faculty, tok.Course, tok.Group))
		m.askDay(ctx, ev.ChatID)
	case TokenBackFaculty:
		faculties, err := m.lookupList(ctx, ev.ChatID, "faculties", func() ([]string, error) {
			return m.sched.Faculties(ctx)
		})
		if err != nil {
			return err
		}
		m.sendFaculties(ctx, ev.ChatID, faculties)
	case TokenBackCourse:
		courses, err := m.lookupList(ctx, ev.ChatID, "courses", func() ([]string, error) {
			return m.sched.Courses(ctx, tok.Faculty)
		})
		if err != nil {
			return err
		}
		m.sendCourses(ctx, ev.ChatID, tok.Faculty, courses)
	}
	return nil
}

func (m *Machine) restart(ctx context.Context, ev Event, st *State) error {
	*st = State{}
	m.setMenu(ctx, ev.ChatID, "")
	return m.checkSubscription(ctx, ev)
}

func (m *Machine) checkSubscription(ctx context.Context, ev Event) error {
	ok := true
	if m.subs != nil {
		var err error
		if ok, err = m.subs.IsMember(ctx, ev.UserID); err != nil {
			m.fail(ctx, ev.ChatID, "subscription.check", err)
			return err
		}
	}
	if !ok {
		logger.Info(ctx, component, "subscription.missing", slog.String("status", "skip"))
		m.sendSubscriptionPrompt(ctx, ev.ChatID)
		return nil
	}
	m.send(ctx, ev.ChatID, Message{Text: welcomeText(m.contact)})
	m.sendRolePrompt(ctx, ev.ChatID)
	return nil
}

func (m *Machine) checkAdminSecret(ctx context.Context, ev Event) error {
	if m.secret == "" || subtle.ConstantTimeCompare([]byte(ev.Text), []byte(m.secret)) != 1 {
		logger.Info(ctx, component, "admin.denied", slog.String("status", "skip"))
		m.send(ctx, ev.ChatID, Message{Text: textWrongAdminSecret})
		return nil
	}
	logger.Info(ctx, component, "admin.granted")

	teachers, err := m.sched.TeachersWithCodes(ctx)
	if err != nil {
		m.fail(ctx, ev.ChatID, "admin.teachers", err)
		return err
	}
	if m.export == nil {
		err := errors.New("conversation: no exporter configured")
		m.fail(ctx, ev.ChatID, "admin.export", err)
		return err
	}
	data, err := m.export(teachers)
	if err != nil {
		m.fail(ctx, ev.ChatID, "admin.export", err)
		return err
	}
	doc := Document{FileName: exportFileName, Caption: textExportCaption, Data: data}
	if err := m.msg.SendDocument(ctx, ev.ChatID, doc); err != nil {
		m.logSendError(ctx, "send.document", err)
		return nil
	}
	logger.Info(ctx, component, "admin.exported", slog.Int("count", len(teachers)))
	return nil
}

func (m *Machine) checkTeacherCode(ctx context.Context, ev Event, st *State) error {
	code := strings.TrimSpace(ev.Text)
	name, ok, err := m.sched.CheckTeacherCode(ctx, code)
	if err != nil {
		m.fail(ctx, ev.ChatID, "teacher.check", err)
		return err
	}
	if !ok {
		logger.Info(ctx, component, "teacher.code_rejected", slog.String("status", "skip"))
		m.send(ctx, ev.ChatID, Message{Text: textWrongTeacherCode})
		return nil
	}

	st.TeacherCode = code
	logger.Info(ctx, component, "teacher.code_accepted", slog.String("role", st.Role.String()))
	m.send(ctx, ev.ChatID, Message{Text: teacherGreeting(name)})
	m.setMenu(ctx, ev.ChatID, m.sched.TeacherLink(code))
	m.send(ctx, ev.ChatID, Message{Text: textFullScheduleHint})
	m.askDay(ctx, ev.ChatID)
	return nil
}

func (m *Machine) selectDay(ctx context.Context, ev Event, st *State) error {
	if st.Pending() != PendingDay {
		logger.Info(ctx, component, "day.selection_missing",
			slog.String("status", "skip"),
			slog.String("role", st.Role.String()),
		)
		m.send(ctx, ev.ChatID, Message{Text: textSelectionMissing})
		m.sendRolePrompt(ctx, ev.ChatID)
		return nil
	}

	day := m.days.Resolve(ev.Text)
	var (
		content string
		err     error
	)
	if st.Role == RoleTeacher {
		content, err = m.sched.TeacherDay(ctx, st.TeacherCode, day)
	} else {
		content, err = m.sched.Day(ctx, st.Faculty, st.Course, st.Group, day)
	}
	switch {
	case errors.Is(err, schedule.ErrNotFound):
		m.send(ctx, ev.ChatID, Message{Text: textNoSchedule})
		return nil
	case err != nil:
		m.fail(ctx, ev.ChatID, "day.lookup", err)
		return err
	case strings.TrimSpace(content) == "":
		m.send(ctx, ev.ChatID, Message{Text: textNoSchedule})
		return nil
	}

	sent, err := m.sendChunks(ctx, ev.ChatID, content)
	logger.Info(ctx, component, "day.sent",
		slog.String("role", st.Role.String()),
		slog.String("day", logger.SanitizeLimit(day, 32)),
		slog.Int("chunks", sent),
	)
	return err
}

func (m *Machine) sendChunks(ctx context.Context, chatID int64, content string) (int, error) {
	limit := rate.Inf
	if m.chunkDelay > 0 {
		limit = rate.Every(m.chunkDelay)
	}
	pace := rate.NewLimiter(limit, 1)

	sent := 0
	for _, part := range Chunk(content, m.chunkSize) {
		if err := pace.Wait(ctx); err != nil {
			return sent, fmt.Errorf("conversation: chunk pacing: %w", err)
		}
		if err := m.send(ctx, chatID, Message{Text: part}); err != nil {
			if !errors.Is(err, ErrBlocked) {
				m.send(ctx, chatID, Message{Text: textGenericFailure})
			}
			break
		}
		sent++
	}
	return sent, nil
}

// lookupList runs a list lookup; a missing list reads as empty.
func (m *Machine) lookupList(ctx context.Context, chatID int64, what string, fn func() ([]string, error)) ([]string, error) {
	items, err := fn()
	if errors.Is(err, schedule.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		m.fail(ctx, chatID, what+".lookup", err)
		return nil, err
	}
	return items, nil
}

func (m *Machine) sendRolePrompt(ctx context.Context, chatID int64) {
	m.send(ctx, chatID, Message{
		Text: textRolePrompt,
		Buttons: [][]keyboard.InlineBtn{
			{{Text: textStudentButton, Data: Token{Kind: TokenStudent}.String()}},
			{{Text: textTeacherButton, Data: Token{Kind: TokenTeacher}.String()}},
		},
	})
}

func (m *Machine) sendSubscriptionPrompt(ctx context.Context, chatID int64) {
	var rows [][]keyboard.InlineBtn
	if m.channel != "" {
		rows = append(rows, []keyboard.InlineBtn{{Text: textSubscribeButton, URL: m.channel}})
	}
	rows = append(rows, []keyboard.InlineBtn{{Text: textCheckButton, Data: Token{Kind: TokenCheckSubscription}.String()}})
	m.send(ctx, chatID, Message{Text: textSubscribePrompt, Buttons: rows})
}

func (m *Machine) sendFaculties(ctx context.Context, chatID int64, faculties []string) {
	buttons := m.optionButtons(ctx, faculties, func(name string) Token {
		return Token{Kind: TokenFaculty, Faculty: name}
	})
	if len(buttons) == 0 {
		m.send(ctx, chatID, Message{Text: textNoFaculties})
		return
	}
	m.send(ctx, chatID, Message{Text: textChooseFaculty, Buttons: keyboard.Grid(buttons, 2)})
}

func (m *Machine) sendCourses(ctx context.Context, chatID int64, faculty string, courses []string) {
	buttons := m.optionButtons(ctx, courses, func(name string) Token {
		return Token{Kind: TokenCourse, Faculty: faculty, Course: name}
	})
	if len(buttons) == 0 {
		m.send(ctx, chatID, Message{Text: textNoCourses})
		return
	}
	back := []keyboard.InlineBtn{{Text: textBackButton, Data: Token{Kind: TokenBackFaculty}.String()}}
	m.send(ctx, chatID, Message{
		Text:    coursesPrompt(faculty),
		Buttons: append(keyboard.Grid(buttons, 2), back),
	})
}

func (m *Machine) sendGroups(ctx context.Context, chatID int64, faculty, course string, groups []string) {
	buttons := m.optionButtons(ctx, groups, func(name string) Token {
		return Token{Kind: TokenGroup, Faculty: faculty, Course: course, Group: name}
	})
	if len(buttons) == 0 {
		m.send(ctx, chatID, Message{Text: textNoGroups})
		return
	}
	back := []keyboard.InlineBtn{{Text: textBackButton, Data: Token{Kind: TokenBackCourse, Faculty: faculty}.String()}}
	m.send(ctx, chatID, Message{
		Text:    groupsPrompt(faculty, course),
		Buttons: append(keyboard.Grid(buttons, 2), back),
	})
}

// optionButtons drops names that cannot be carried in callback data.
func (m *Machine) optionButtons(ctx context.Context, names []string, token func(string) Token) []keyboard.InlineBtn {
	buttons := make([]keyboard.InlineBtn, 0, len(names))
	for _, name := range names {
		if name == "" {
			continue
		}
		tok := token(name)
		if !tok.Encodable() {
			logger.Warn(ctx, component, "option.skipped",
				slog.String("status", "skip"),
				slog.String("cb_key", logger.SanitizeLimit(tok.String(), 96)),
			)
			continue
		}
		buttons = append(buttons, keyboard.InlineBtn{Text: name, Data: tok.String()})
	}
	return buttons
}

func (m *Machine) askDay(ctx context.Context, chatID int64) {
	m.send(ctx, chatID, Message{Text: textChooseDay, ReplyKeyboard: m.days.KeyboardRows()})
}

func (m *Machine) setMenu(ctx context.Context, chatID int64, link string) {
	text := ""
	if link != "" {
		text = menuButtonText
	}
	if err := m.msg.SetMenuLink(ctx, chatID, text, link); err != nil {
		m.logSendError(ctx, "menu.set", err)
	}
}

// fail reports a collaborator failure to the user and the log. The state
// of the conversation is left as it was.
func (m *Machine) fail(ctx context.Context, chatID int64, op string, err error) {
	logger.Error(ctx, component, "lookup.failed",
		slog.String("status", "error"),
		slog.String("op", op),
		logger.Err(err),
	)
	m.send(ctx, chatID, Message{Text: textGenericFailure})
}

func (m *Machine) send(ctx context.Context, chatID int64, msg Message) error {
	err := m.msg.Send(ctx, chatID, msg)
	if err != nil {
		m.logSendError(ctx, "send.text", err)
	}
	return err
}

func (m *Machine) logSendError(ctx context.Context, op string, err error) {
	if errors.Is(err, ErrBlocked) {
		logger.Info(ctx, component, "outbound.blocked",
			slog.String("status", "skip"),
			slog.String("op", op),
		)
		return
	}
	logger.Warn(ctx, component, "outbound.failed",
		slog.String("op", op),
		logger.Err(err),
	)
}
