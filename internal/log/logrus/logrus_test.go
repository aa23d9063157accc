package logrus_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	"github.com/slok/opwatch/internal/log"
	loglogrus "github.com/slok/opwatch/internal/log/logrus"
)

func TestLogrusLoggerValues(t *testing.T) {
	tests := map[string]struct {
		log    func(l log.Logger)
		expOut []string
	}{
		"Static values should be added to the log line.": {
			log: func(l log.Logger) {
				l.WithValues(log.Kv{"svc": "task.Registry"}).Infof("task %s started", "journal_ventes")
			},
			expOut: []string{`"svc":"task.Registry"`, `"msg":"task journal_ventes started"`},
		},
		"Context values should be added to the log line.": {
			log: func(l log.Logger) {
				ctx := l.SetValuesOnCtx(context.Background(), log.Kv{"task-id": "job-1"})
				l.WithCtxValues(ctx).Warningf("poll failed")
			},
			expOut: []string{`"task-id":"job-1"`, `"level":"warning"`},
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)

			var buf bytes.Buffer
			l := logrus.New()
			l.Out = &buf
			l.SetFormatter(&logrus.JSONFormatter{})
			logger := loglogrus.NewLogrus(logrus.NewEntry(l))

			test.log(logger)

			for _, exp := range test.expOut {
				assert.Contains(buf.String(), exp)
			}
		})
	}
}
