package logsvc

import (
	"bytes"
	"log"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/trezcool/masomo-credits/core"
)

func newTestLogger(out *bytes.Buffer) *RollbarLogger {
	conf := core.NewConfig()
	conf.TestMode = true
	logger := NewRollbarLogger(log.New(out, "", 0), conf)
	logger.Enable(false)
	return logger
}

func TestRollbarLogger_prepare(t *testing.T) {
	logger := newTestLogger(new(bytes.Buffer))
	err := errors.New("boom")
	extras := map[string]interface{}{"document_type": "transcript"}

	tests := []struct {
		name string
		args []interface{}
		want []interface{}
	}{
		{name: "message only", want: []interface{}{"msg"}},
		{name: "error & extras", args: []interface{}{err, extras}, want: []interface{}{"msg", err, extras}},
		{
			name: "person is dropped",
			args: []interface{}{err, core.Person{ID: "school-1"}, extras},
			want: []interface{}{"msg", err, extras},
		},
		{
			name: "only one person",
			args: []interface{}{core.Person{ID: "school-1"}, core.Person{ID: "school-2"}},
			want: []interface{}{"msg"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, logger.prepare("msg", tt.args))
		})
	}
}

func TestRollbarLogger_print(t *testing.T) {
	out := new(bytes.Buffer)
	logger := newTestLogger(out)

	logger.Info("purchase completed", map[string]interface{}{"credits": 50}, core.Person{ID: "school-1"})
	logger.Error("generation failed", errors.New("printer on fire"))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	assert.Equal(t, "purchase completed", lines[0])
	assert.Contains(t, out.String(), "map[credits:50]")
	assert.Contains(t, out.String(), "generation failed")
	assert.Contains(t, out.String(), "printer on fire")
}
