package event

import (
	"errors"
	"strings"
	"testing"
	"time"

	"analytics-service/internal/model"
)

func TestDecodeValidPayload(t *testing.T) {
	payload := []byte(`{
		"eventType": "page_view",
		"userId": "user-1",
		"sessionId": "sess-1",
		"timestampUtc": "2024-03-15T10:30:00Z",
		"url": "/home",
		"browser": "Firefox",
		"latitude": 52.52,
		"longitude": 13.405
	}`)

	evt, err := Decode(payload)
	if err != nil {
		t.Fatalf("Decode returned error: %v", err)
	}

	if evt.EventType != "page_view" {
		t.Errorf("EventType = %q, want page_view", evt.EventType)
	}
	if evt.UserID != "user-1" {
		t.Errorf("UserID = %q, want user-1", evt.UserID)
	}
	if evt.SessionID != "sess-1" {
		t.Errorf("SessionID = %q, want sess-1", evt.SessionID)
	}
	want := time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)
	if !evt.TimestampUtc.Equal(want) {
		t.Errorf("TimestampUtc = %v, want %v", evt.TimestampUtc, want)
	}
	if evt.Url == nil || *evt.Url != "/home" {
		t.Errorf("Url = %v, want /home", evt.Url)
	}
	if !evt.HasCoordinates() {
		t.Error("HasCoordinates() = false, want true")
	}
}

func TestDecodeCaseInsensitiveFields(t *testing.T) {
	payload := []byte(`{"EVENTTYPE":"click","USERID":"u","SessionID":"s"}`)

	evt, err := Decode(payload)
	if err != nil {
		t.Fatalf("Decode returned error: %v", err)
	}
	if evt.EventType != "click" || evt.UserID != "u" || evt.SessionID != "s" {
		t.Errorf("case-insensitive match failed: %+v", evt)
	}
}

func TestDecodeIgnoresUnknownFields(t *testing.T) {
	payload := []byte(`{"eventType":"click","userId":"u","sessionId":"s","futureField":42}`)

	evt, err := Decode(payload)
	if err != nil {
		t.Fatalf("Decode returned error: %v", err)
	}
	if evt.EventType != "click" {
		t.Errorf("EventType = %q, want click", evt.EventType)
	}
}

func TestDecodeMalformed(t *testing.T) {
	cases := []struct {
		name    string
		payload string
	}{
		{"truncated object", `{"eventType": "page_view"`},
		{"not json", `this is not json`},
		{"wrong field type", `{"eventType": 42, "userId": "u", "sessionId": "s"}`},
		{"array root", `[1,2,3]`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Decode([]byte(tc.payload))
			if err == nil {
				t.Fatal("Decode returned nil error for malformed payload")
			}
			if !errors.Is(err, ErrDecode) {
				t.Errorf("error = %v, want ErrDecode", err)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name      string
		eventType string
		userID    string
		sessionID string
		want      bool
	}{
		{"all present", "page_view", "u1", "s1", true},
		{"missing event type", "", "u1", "s1", false},
		{"missing user id", "page_view", "", "s1", false},
		{"missing session id", "page_view", "u1", "", false},
		{"all missing", "", "", "", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			evt := &model.Event{
				EventType: tc.eventType,
				UserID:    tc.userID,
				SessionID: tc.sessionID,
			}
			if got := Validate(evt); got != tc.want {
				t.Errorf("Validate() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestValidateNil(t *testing.T) {
	if Validate(nil) {
		t.Error("Validate(nil) = true, want false")
	}
}

func TestEncodeEmitsNullOptionals(t *testing.T) {
	evt := &model.Event{
		EventType: "page_view",
		UserID:    "u1",
		SessionID: "s1",
	}

	data, err := Encode(evt)
	if err != nil {
		t.Fatalf("Encode returned error: %v", err)
	}

	body := string(data)
	for _, field := range []string{`"url":null`, `"city":null`, `"batchId":null`, `"processedTimestamp":null`} {
		if !strings.Contains(body, field) {
			t.Errorf("encoded payload missing %s: %s", field, body)
		}
	}

	// Keys are absent until assigned at write time.
	if strings.Contains(body, "partitionKey") || strings.Contains(body, "rowKey") {
		t.Errorf("unassigned keys should be omitted: %s", body)
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	url := "/checkout"
	browser := "Chrome"
	evt := &model.Event{
		EventType:    "button_click",
		UserID:       "u1",
		SessionID:    "s1",
		TimestampUtc: time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC),
		Url:          &url,
		Browser:      &browser,
	}

	data, err := Encode(evt)
	if err != nil {
		t.Fatalf("Encode returned error: %v", err)
	}

	decoded, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode returned error: %v", err)
	}

	if decoded.EventType != evt.EventType || decoded.UserID != evt.UserID {
		t.Errorf("round trip changed identity fields: %+v", decoded)
	}
	if decoded.Url == nil || *decoded.Url != url {
		t.Errorf("round trip lost url: %v", decoded.Url)
	}
	if decoded.Browser == nil || *decoded.Browser != browser {
		t.Errorf("round trip lost browser: %v", decoded.Browser)
	}
}
