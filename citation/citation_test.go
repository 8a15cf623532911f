package citation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type setIndex map[string]bool

func (s setIndex) IsValid(id string) bool { return s[id] }

func TestNormalize(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"TMEP §1207.01", "1207.01"},
		{"TMEP § 1207", "1207"},
		{"§1209", "1209"},
		{"1207", "1207"},
		{" 904 ", "904"},
		{"TMEP Section 1402.", "1402"},
		{"[TMEP §807]", "807"},
		{"tmep 1301", "1301"},
		{"TMEP", ""},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.raw))
		})
	}
}

func TestExtract(t *testing.T) {
	text := "Under TMEP §1207.01 the goods are related. See also TMEP § 1209 and §904; page 12 is not a citation."
	assert.Equal(t, []string{"TMEP §1207.01", "TMEP § 1209", "§904"}, Extract(text))
	assert.Empty(t, Extract("no citations here"))
}

func TestValidate(t *testing.T) {
	v := NewValidator(setIndex{"1207": true, "1207.01": true, "1209": true})

	res := v.Validate([]string{"TMEP §1207", "TMEP §9999", "1207", "§1207.01", "TMEP §1234.5"})
	assert.Equal(t, []string{"1207", "1207.01"}, res.Valid)
	assert.Equal(t, []string{"1234.5", "9999"}, res.Invalid)
	assert.Equal(t, 4, res.Total())
}

func TestValidateOrderIndependent(t *testing.T) {
	v := NewValidator(setIndex{"1207": true, "1209": true})
	a := v.Validate([]string{"1209", "TMEP §42", "1207"})
	b := v.Validate([]string{"1207", "1209", "TMEP §42"})
	assert.Equal(t, a, b)
}

func TestValidateUnparseable(t *testing.T) {
	v := NewValidator(setIndex{"1207": true})
	res := v.Validate([]string{"the manual", "  "})
	assert.Empty(t, res.Valid)
	assert.Equal(t, []string{"the manual"}, res.Invalid)
}

func TestValidateEmpty(t *testing.T) {
	res := NewValidator(setIndex{}).Validate(nil)
	assert.Empty(t, res.Valid)
	assert.Empty(t, res.Invalid)
	assert.Zero(t, res.Total())
}
