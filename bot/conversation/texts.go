package conversation

import (
	"fmt"
	"strings"

	"github.com/smartschedule/schedulebot/core/telegram/format"
)

const (
	CmdStart = "/start"
	CmdHelp  = "/help"
	CmdAdmin = "/admin"
)

const (
	menuButtonText = "📚 Full schedule"

	textRolePrompt       = "📌 How would you like to continue?"
	textStudentButton    = "👨‍🎓 Student"
	textTeacherButton    = "👨‍🏫 Teacher"
	textSubscribePrompt  = "❌ Please subscribe to the channel first, then come back:"
	textSubscribeButton  = "📢 Subscribe to the channel"
	textCheckButton      = "✅ Check subscription"
	textChooseFaculty    = "🏫 Choose a faculty:"
	textNoFaculties      = "❌ No faculties found!"
	textNoCourses        = "❌ No courses found!"
	textNoGroups         = "❌ No groups found!"
	textBackButton       = "⬅️ Back"
	textAskTeacherCode   = "🔑 Please enter your access code:"
	textWrongTeacherCode = "❌ Wrong code! Please enter the code again."
	textFullScheduleHint = "📅 Tap the <b>Full schedule</b> button to see the whole timetable!"
	textChooseDay        = "📌 Please choose a day:"
	textSelectionMissing = "❌ Please choose your faculty, course and group first!"
	textNoSchedule       = "ℹ️ Nothing scheduled for that day."
	textAskAdminSecret   = "🔑 Please enter the admin code:"
	textWrongAdminSecret = "❌ Wrong code! Send /admin to try again."
	textUnknownCommand   = "❌ Unknown command! Send /help to see the available commands."
	textGenericFailure   = "❌ Something went wrong, please try again later."
	textExportCaption    = "📋 Teacher list with access codes"

	exportFileName = "teachers.xlsx"
)

func welcomeText(contact string) string {
	var b strings.Builder
	b.WriteString("🎉 Welcome to " + format.Bold("SmartScheduleBot") + "! I help you find your timetable quickly.\n\n")
	b.WriteString("📚 " + format.Bold("What I can do:") + "\n")
	b.WriteString("- Students: timetables by faculty, course and group.\n")
	b.WriteString("- Teachers: timetables by personal access code.\n")
	b.WriteString("- A timetable for any day, plus the full schedule behind the menu button.\n\n")
	b.WriteString("🔧 " + format.Bold("Commands:") + "\n")
	b.WriteString("/start - restart the bot\n")
	b.WriteString("/help - help and information\n")
	b.WriteString("/admin - teacher list export for admins")
	if contact != "" {
		b.WriteString("\n\n📩 " + format.Bold("Ideas and requests:") + " write to " + format.EscapeHTML(contact) + "!")
	}
	return b.String()
}

func helpText(contact string) string {
	var b strings.Builder
	b.WriteString("ℹ️ " + format.Bold("SmartScheduleBot help") + "\n\n")
	b.WriteString("1. Students: choose your faculty, course and group.\n")
	b.WriteString("2. Teachers: enter your personal access code.\n")
	b.WriteString("3. Pick a day for its timetable, or open the " + format.Bold("Full schedule") + " menu button.\n\n")
	b.WriteString("🔧 " + format.Bold("Commands:") + "\n")
	b.WriteString("/start - start over\n")
	b.WriteString("/help - this help\n")
	b.WriteString("/admin - teacher list (admins only)")
	if contact != "" {
		b.WriteString("\n\n📩 Questions or suggestions? Contact " + format.EscapeHTML(contact) + "!")
	}
	return b.String()
}

func coursesPrompt(faculty string) string {
	return fmt.Sprintf("📚 %s - choose a course:", format.EscapeHTML(faculty))
}

func groupsPrompt(faculty, course string) string {
	return fmt.Sprintf("📄 %s - %s - choose a group:", format.EscapeHTML(faculty), format.EscapeHTML(course))
}

func teacherGreeting(name string) string {
	return fmt.Sprintf("🎉 Welcome, %s!", format.EscapeHTML(name))
}
