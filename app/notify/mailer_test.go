package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/wneessen/go-mail"
)

func testConfig() Config {
	return Config{
		Server:   "smtp.example.com",
		Username: "digest",
		Password: "secret",
		Sender:   "digest@example.com",
		Receiver: "reader@example.com",
	}
}

type recorder struct {
	ports []int
	fail  map[int]error
}

func (r *recorder) deliver(ctx context.Context, host string, a attempt, msg *mail.Msg) error {
	r.ports = append(r.ports, a.port)
	return r.fail[a.port]
}

func TestSendUsesPrimaryPort(t *testing.T) {
	rec := &recorder{}
	m := NewMailer(testConfig())
	m.deliver = rec.deliver

	if !m.Send(context.Background(), "Digest", "<p>hi</p>") {
		t.Fatal("Expected mail to be sent")
	}
	if len(rec.ports) != 1 || rec.ports[0] != 465 {
		t.Errorf("Expected a single attempt on 465, got %v", rec.ports)
	}
}

func TestSendFallsBack(t *testing.T) {
	rec := &recorder{fail: map[int]error{465: errors.New("connection refused")}}
	m := NewMailer(testConfig())
	m.deliver = rec.deliver

	if !m.Send(context.Background(), "Digest", "<p>hi</p>") {
		t.Fatal("Expected fallback to deliver")
	}
	if len(rec.ports) != 2 || rec.ports[1] != 25 {
		t.Errorf("Expected attempts on [465 25], got %v", rec.ports)
	}
}

func TestSendReportsOverallFailure(t *testing.T) {
	rec := &recorder{fail: map[int]error{
		465: errors.New("connection refused"),
		25:  errors.New("starttls not offered"),
	}}
	m := NewMailer(testConfig())
	m.deliver = rec.deliver

	if m.Send(context.Background(), "Digest", "<p>hi</p>") {
		t.Error("Expected failure when every attempt fails")
	}
	if len(rec.ports) != 2 {
		t.Errorf("Expected 2 attempts, got %d", len(rec.ports))
	}
}

func TestSendWithoutCredentialsNeverDials(t *testing.T) {
	rec := &recorder{}
	cfg := testConfig()
	cfg.Password = ""
	m := NewMailer(cfg)
	m.deliver = rec.deliver

	if m.Send(context.Background(), "Digest", "<p>hi</p>") {
		t.Error("Expected failure without credentials")
	}
	if len(rec.ports) != 0 {
		t.Errorf("Expected no connection attempts, got %v", rec.ports)
	}
	if !errors.Is(cfg.Validate(), ErrMissingCredentials) {
		t.Errorf("Expected ErrMissingCredentials, got %v", cfg.Validate())
	}
}

func TestCustomPorts(t *testing.T) {
	rec := &recorder{fail: map[int]error{2465: errors.New("timeout")}}
	cfg := testConfig()
	cfg.PrimaryPort = 2465
	cfg.FallbackPort = 2587
	m := NewMailer(cfg)
	m.deliver = rec.deliver

	if !m.Send(context.Background(), "Digest", "<p>hi</p>") {
		t.Fatal("Expected fallback to deliver")
	}
	if rec.ports[0] != 2465 || rec.ports[1] != 2587 {
		t.Errorf("Expected attempts on [2465 2587], got %v", rec.ports)
	}
}
