package webhooks

import (
	"bytes"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// Worker drains the delivery queue, POSTing each payload with an HMAC
// signature header. Failures retry with exponential backoff until MaxAttempts.
type Worker struct {
	Queue       *Queue
	HTTP        *http.Client
	Stop        chan struct{}
	MaxAttempts int
	Log         *logrus.Logger
}

func NewWorker(q *Queue) *Worker {
	return &Worker{
		Queue:       q,
		HTTP:        &http.Client{Timeout: 5 * time.Second},
		Stop:        make(chan struct{}),
		MaxAttempts: 10,
		Log:         logrus.StandardLogger(),
	}
}

func (w *Worker) Start() {
	go func() {
		ticker := time.NewTicker(1 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-w.Stop:
				return
			case <-ticker.C:
				w.processOnce()
			}
		}
	}()
}

func (w *Worker) processOnce() {
	for _, d := range w.Queue.due(time.Now(), 50) {
		req, err := http.NewRequest(http.MethodPost, d.url, bytes.NewReader(d.payload))
		if err != nil {
			w.Log.WithField("url", d.url).WithError(err).Warn("webhook dropped")
			continue
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Event-Type", d.eventType)
		if d.secret != "" {
			req.Header.Set("X-Signature", SignHMAC(d.secret, d.payload))
		}

		success := false
		resp, err := w.HTTP.Do(req)
		if err == nil && resp != nil {
			if resp.Body != nil {
				_ = resp.Body.Close()
			}
			success = resp.StatusCode >= 200 && resp.StatusCode < 300
		}
		if success {
			continue
		}

		d.attempts++
		if d.attempts >= w.MaxAttempts {
			w.Log.WithFields(logrus.Fields{"url": d.url, "attempts": d.attempts}).Warn("webhook delivery abandoned")
			continue
		}
		d.nextAt = time.Now().Add(nextBackoff(d.attempts))
		w.Queue.push(d)
	}
}

func nextBackoff(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	if attempts > 10 {
		attempts = 10
	}
	base := time.Second * time.Duration(1<<attempts)
	if base > time.Hour {
		base = time.Hour
	}
	return base
}
