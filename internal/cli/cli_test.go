package cli

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/your-username/ehr-console/internal/api"
	"github.com/your-username/ehr-console/internal/auth"
	"github.com/your-username/ehr-console/internal/buffer"
	"github.com/your-username/ehr-console/internal/models"
	"github.com/your-username/ehr-console/internal/output"
	"github.com/your-username/ehr-console/internal/stream"
	"github.com/your-username/ehr-console/internal/view"
)

func TestParseLevels(t *testing.T) {
	tests := []struct {
		in      string
		want    []models.Level
		wantErr bool
	}{
		{in: "", want: models.Levels},
		{in: "error", want: []models.Level{models.LevelError}},
		{in: " Warn , DEBUG", want: []models.Level{models.LevelWarn, models.LevelDebug}},
		{in: "info", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			filter, err := parseLevels(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected an error")
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}

			enabled := 0
			for _, on := range filter.Levels {
				if on {
					enabled++
				}
			}
			if enabled != len(tt.want) {
				t.Errorf("expected %d enabled levels, got %d", len(tt.want), enabled)
			}
			for _, level := range tt.want {
				if !filter.Levels[level] {
					t.Errorf("expected %s enabled", level)
				}
			}
		})
	}
}

func TestFollowFiltersFrames(t *testing.T) {
	buf, err := buffer.New(10)
	if err != nil {
		t.Fatal(err)
	}
	filter, _ := parseLevels("error")
	filter = filter.WithQuery("token")

	events := make(chan stream.Event, 4)
	events <- stream.StateEvent{State: models.StateOpen}
	events <- stream.FrameEvent{Name: "message", Data: `{"level":"ERROR","message":"EHR token exchange failed"}`}
	events <- stream.FrameEvent{Name: "LOG", Data: `{"level":"LOG","message":"token ok"}`}
	events <- stream.FrameEvent{Name: "message", Data: `{"level":"ERROR","message":"lab feed down"}`}
	close(events)

	var out bytes.Buffer
	if err := follow(events, buf, filter, output.NewTextRenderer(&out, false)); err != nil {
		t.Fatal(err)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 1 || !strings.Contains(lines[0], "EHR token exchange failed") {
		t.Errorf("unexpected output %q", out.String())
	}
	if buf.Len() != 3 {
		t.Errorf("every frame is buffered, got %d", buf.Len())
	}
}

func TestFollowEmptyFilter(t *testing.T) {
	buf, _ := buffer.New(10)
	events := make(chan stream.Event, 1)
	events <- stream.FrameEvent{Name: "message", Data: "plain text"}
	close(events)

	var out bytes.Buffer
	if err := follow(events, buf, view.NewFilter(), output.NewJSONRenderer(&out)); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), `"rawText":"plain text"`) {
		t.Errorf("unexpected output %q", out.String())
	}
}

func TestPrintIdentity(t *testing.T) {
	now := time.Unix(1700000000, 0)
	claims := auth.Claims{
		Email: "operator@example.com",
		Roles: []string{"admin"},
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "42",
			ExpiresAt: jwt.NewNumericDate(now.Add(90 * time.Second)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	if err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	if err := printIdentity(&out, token, true, now); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"operator@example.com", "Subject: 42", "admin", "in 1m30s", "Refresh: true"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("expected %q in %q", want, out.String())
		}
	}

	out.Reset()
	if err := printIdentity(&out, token, false, now.Add(time.Hour)); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "expired 58m30s ago") {
		t.Errorf("unexpected output %q", out.String())
	}
}

func TestPrintIdentitySignedOut(t *testing.T) {
	var out bytes.Buffer
	if err := printIdentity(&out, "", false, time.Now()); err == nil {
		t.Error("expected an error without any token")
	}
	if err := printIdentity(&out, "", true, time.Now()); err != nil {
		t.Errorf("a refresh token alone is a session: %v", err)
	}
}

func TestPrintResponse(t *testing.T) {
	var out bytes.Buffer
	if err := printResponse(&out, &api.Response{Status: 200, Body: []byte(`{"email":"a@b.c"}`)}); err != nil {
		t.Fatal(err)
	}
	if out.String() != "{\n  \"email\": \"a@b.c\"\n}\n" {
		t.Errorf("unexpected output %q", out.String())
	}

	out.Reset()
	err := printResponse(&out, &api.Response{Status: 404, Body: []byte("not found")})
	if err == nil || !strings.Contains(err.Error(), "404") {
		t.Errorf("expected a 404 error, got %v", err)
	}
	if out.String() != "not found\n" {
		t.Errorf("unexpected output %q", out.String())
	}
}

func TestDisplayName(t *testing.T) {
	tests := []struct {
		user auth.User
		want string
	}{
		{auth.User{Email: "a@b.c"}, "a@b.c"},
		{auth.User{Firstname: "Ada", Lastname: "Lovelace"}, "Ada Lovelace"},
		{auth.User{Firstname: "Ada", Email: "a@b.c"}, "Ada <a@b.c>"},
	}
	for _, tt := range tests {
		if got := displayName(tt.user); got != tt.want {
			t.Errorf("got %q, want %q", got, tt.want)
		}
	}
}
