package callbacks

import (
	"testing"

	"github.com/stretchr/testify/assert"
	tele "gopkg.in/telebot.v4"
)

func TestParseCallbackData(t *testing.T) {
	key, payload := ParseCallbackData(&tele.Callback{Data: "group_Econ_1_A1"})
	assert.Equal(t, "group_Econ_1_A1", key)
	assert.Empty(t, payload)

	key, payload = ParseCallbackData(&tele.Callback{Data: "\fexport|42"})
	assert.Equal(t, "export", key)
	assert.Equal(t, "42", payload)

	key, payload = ParseCallbackData(nil)
	assert.Empty(t, key)
	assert.Empty(t, payload)
}

func TestFamily(t *testing.T) {
	assert.Equal(t, "group", Family("group_Econ_1_A1"))
	assert.Equal(t, "student", Family("student"))
	assert.Equal(t, "back", Family("back_course_Econ"))
	assert.Equal(t, "unknown", Family(" "))
}
