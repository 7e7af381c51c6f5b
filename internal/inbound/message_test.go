package inbound

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/sungwon/wa-commerce/internal/gateway"
)

func TestClassify(t *testing.T) {
	account := uuid.New()
	date := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		item      gateway.InboundItem
		wantOK    bool
		wantKind  Kind
		wantText  string
		wantMedia string
	}{
		{
			name:     "plain text",
			item:     gateway.InboundItem{ID: "1", Phone: "+62 812-3456", Message: "  halo kak  "},
			wantOK:   true,
			wantKind: KindText,
			wantText: "halo kak",
		},
		{
			name:      "provider media url",
			item:      gateway.InboundItem{ID: "2", Phone: "62812", Message: "bukti transfer", URL: "https://cdn.example.com/a.jpg"},
			wantOK:    true,
			wantKind:  KindImage,
			wantText:  "bukti transfer",
			wantMedia: "https://cdn.example.com/a.jpg",
		},
		{
			name:      "embedded media url lifted",
			item:      gateway.InboundItem{ID: "3", Phone: "62812", Message: "sudah bayar https://cdn.example.com/r/receipt.PNG?sig=abc ya"},
			wantOK:    true,
			wantKind:  KindImage,
			wantText:  "sudah bayar ya",
			wantMedia: "https://cdn.example.com/r/receipt.PNG?sig=abc",
		},
		{
			name:      "image only",
			item:      gateway.InboundItem{ID: "4", Phone: "62812", Message: "http://x.io/p.webp"},
			wantOK:    true,
			wantKind:  KindImage,
			wantMedia: "http://x.io/p.webp",
		},
		{
			name:     "non media link stays text",
			item:     gateway.InboundItem{ID: "5", Phone: "62812", Message: "see https://shop.example.com/item/12"},
			wantOK:   true,
			wantKind: KindText,
			wantText: "see https://shop.example.com/item/12",
		},
		{
			name:   "empty content discarded",
			item:   gateway.InboundItem{ID: "6", Phone: "62812", Message: "   "},
			wantOK: false,
		},
		{
			name:   "missing id discarded",
			item:   gateway.InboundItem{Phone: "62812", Message: "hi"},
			wantOK: false,
		},
		{
			name:   "missing sender discarded",
			item:   gateway.InboundItem{ID: "7", Message: "hi"},
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.item.Date = date
			msg, ok := Classify(account, tt.item)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if msg.Kind != tt.wantKind {
				t.Errorf("kind = %q, want %q", msg.Kind, tt.wantKind)
			}
			if msg.Text != tt.wantText {
				t.Errorf("text = %q, want %q", msg.Text, tt.wantText)
			}
			if msg.MediaURL != tt.wantMedia {
				t.Errorf("media = %q, want %q", msg.MediaURL, tt.wantMedia)
			}
			if msg.AccountID != account || !msg.Date.Equal(date) {
				t.Errorf("account/date not carried over: %+v", msg)
			}
		})
	}
}

func TestClassify_NormalizesSender(t *testing.T) {
	msg, ok := Classify(uuid.New(), gateway.InboundItem{ID: "1", Phone: "+62 (812) 3456-789", Message: "hi"})
	if !ok {
		t.Fatal("expected message to be kept")
	}
	if msg.Sender != "628123456789" {
		t.Errorf("sender = %q", msg.Sender)
	}
}

func TestMessage_Record(t *testing.T) {
	account := uuid.New()
	msg := Message{ProviderID: "abc", AccountID: account, Sender: "62812", Text: "hi", Kind: KindImage, MediaURL: "https://x/y.jpg"}
	rec := msg.Record()
	if rec.ProviderMessageID != "abc" || rec.AccountID != account || rec.Kind != "image" || rec.MediaURL != "https://x/y.jpg" {
		t.Errorf("unexpected record: %+v", rec)
	}
}
