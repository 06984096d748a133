package media

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/rentdesk/rentdesk-platform/internal/whatsapp"
)

type fakeFetcher struct {
	info    *whatsapp.MediaInfo
	infoErr error
	data    []byte
	dataErr error
}

func (f *fakeFetcher) GetMediaInfo(context.Context, string) (*whatsapp.MediaInfo, error) {
	return f.info, f.infoErr
}

func (f *fakeFetcher) DownloadMedia(context.Context, string) ([]byte, error) {
	return f.data, f.dataErr
}

type fakeS3 struct {
	puts []*s3.PutObjectInput
	err  error
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.puts = append(f.puts, in)
	if f.err != nil {
		return nil, f.err
	}
	return &s3.PutObjectOutput{}, nil
}

func TestResolveUploadsAndReturnsCDNURL(t *testing.T) {
	fetcher := &fakeFetcher{
		info: &whatsapp.MediaInfo{URL: "https://lookaside.example/abc", MimeType: "image/jpeg", FileSize: 3},
		data: []byte("jpg"),
	}
	store := &fakeS3{}
	r := NewResolver(fetcher, store, "rentdesk-media", "https://cdn.rentdesk.example/", nil)
	r.now = func() time.Time { return time.UnixMilli(1700000000000) }

	resolved := r.Resolve(context.Background(), "media-1")
	if resolved == nil {
		t.Fatal("expected resolution")
	}
	wantURL := "https://cdn.rentdesk.example/whatsapp/1700000000000-media-1.jpeg"
	if resolved.URL != wantURL {
		t.Fatalf("url %s, want %s", resolved.URL, wantURL)
	}
	if resolved.MimeType != "image/jpeg" || resolved.FileSize != 3 {
		t.Fatalf("unexpected resolved: %+v", resolved)
	}

	if len(store.puts) != 1 {
		t.Fatalf("expected one upload, got %d", len(store.puts))
	}
	put := store.puts[0]
	if *put.Bucket != "rentdesk-media" || *put.Key != "whatsapp/1700000000000-media-1.jpeg" {
		t.Fatalf("unexpected put: bucket=%s key=%s", *put.Bucket, *put.Key)
	}
	body, _ := io.ReadAll(put.Body)
	if string(body) != "jpg" {
		t.Fatalf("unexpected body %q", body)
	}
}

func TestResolveFailuresReturnNil(t *testing.T) {
	cases := []struct {
		name    string
		fetcher *fakeFetcher
		s3err   error
	}{
		{"info error", &fakeFetcher{infoErr: errors.New("gone")}, nil},
		{"download error", &fakeFetcher{info: &whatsapp.MediaInfo{URL: "u", MimeType: "image/png"}, dataErr: errors.New("expired")}, nil},
		{"upload error", &fakeFetcher{info: &whatsapp.MediaInfo{URL: "u", MimeType: "image/png"}, data: []byte("x")}, errors.New("denied")},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := NewResolver(tc.fetcher, &fakeS3{err: tc.s3err}, "bucket", "https://cdn", nil)
			if got := r.Resolve(context.Background(), "media-1"); got != nil {
				t.Fatalf("expected nil on failure, got %+v", got)
			}
		})
	}
}

func TestResolveDisabled(t *testing.T) {
	r := NewResolver(nil, nil, "", "", nil)
	if r.Enabled() {
		t.Fatal("resolver without deps must be disabled")
	}
	if got := r.Resolve(context.Background(), "media-1"); got != nil {
		t.Fatalf("disabled resolver must return nil, got %+v", got)
	}
}

func TestExtensionFor(t *testing.T) {
	cases := map[string]string{
		"image/jpeg":             "jpeg",
		"audio/ogg; codecs=opus": "ogg",
		"application/pdf":        "pdf",
		"":                       "bin",
		"garbage":                "bin",
	}
	for in, want := range cases {
		if got := extensionFor(in); got != want {
			t.Errorf("extensionFor(%q) = %q, want %q", in, got, want)
		}
	}
	if !strings.HasPrefix(extensionFor("video/mp4"), "mp4") {
		t.Fatal("mp4 expected")
	}
}
