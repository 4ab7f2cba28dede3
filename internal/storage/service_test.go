package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/awss/awss/internal/awsconfig"
)

// fakeAPI pages objects out of a flat key list, honoring prefix,
// delimiter, MaxKeys and continuation tokens the way the backend does.
type fakeAPI struct {
	buckets     []string
	keys        map[string][]objectFixture
	listErr     error
	getErr      error
	contentByID map[string][]byte
	listCalls   int
}

type objectFixture struct {
	key  string
	size int64
}

func (f *fakeAPI) ListBuckets(_ context.Context, _ *s3.ListBucketsInput, _ ...func(*s3.Options)) (*s3.ListBucketsOutput, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := &s3.ListBucketsOutput{}
	for _, name := range f.buckets {
		out.Buckets = append(out.Buckets, types.Bucket{Name: aws.String(name)})
	}
	return out, nil
}

func (f *fakeAPI) ListObjectsV2(_ context.Context, params *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	prefix := aws.ToString(params.Prefix)
	delimiter := aws.ToString(params.Delimiter)
	maxKeys := int(aws.ToInt32(params.MaxKeys))
	if maxKeys <= 0 {
		maxKeys = 1000
	}

	var matched []objectFixture
	for _, fixture := range f.keys[aws.ToString(params.Bucket)] {
		if strings.HasPrefix(fixture.key, prefix) {
			matched = append(matched, fixture)
		}
	}

	start := 0
	if token := aws.ToString(params.ContinuationToken); token != "" {
		fmt.Sscanf(token, "%d", &start)
	}

	out := &s3.ListObjectsV2Output{}
	prefixSeen := make(map[string]struct{})
	emitted := 0
	i := start
	for ; i < len(matched) && emitted < maxKeys; i++ {
		fixture := matched[i]
		if delimiter != "" {
			rest := fixture.key[len(prefix):]
			if idx := strings.Index(rest, delimiter); idx >= 0 {
				common := prefix + rest[:idx+1]
				if _, ok := prefixSeen[common]; !ok {
					prefixSeen[common] = struct{}{}
					out.CommonPrefixes = append(out.CommonPrefixes, types.CommonPrefix{Prefix: aws.String(common)})
					emitted++
				}
				continue
			}
		}
		out.Contents = append(out.Contents, types.Object{
			Key:  aws.String(fixture.key),
			Size: aws.Int64(fixture.size),
		})
		emitted++
	}
	count := int32(emitted)
	out.KeyCount = &count
	if i < len(matched) {
		out.IsTruncated = aws.Bool(true)
		out.NextContinuationToken = aws.String(fmt.Sprintf("%d", i))
	} else {
		out.IsTruncated = aws.Bool(false)
	}
	return out, nil
}

func (f *fakeAPI) GetObject(_ context.Context, params *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	data, ok := f.contentByID[aws.ToString(params.Bucket)+"|"+aws.ToString(params.Key)]
	if !ok {
		return nil, errors.New("NoSuchKey")
	}
	total := int64(len(data))
	start, end := int64(0), total-1
	ranged := false
	if header := aws.ToString(params.Range); header != "" {
		fmt.Sscanf(header, "bytes=%d-%d", &start, &end)
		ranged = true
		if end >= total {
			end = total - 1
		}
		if start > end {
			return nil, errors.New("InvalidRange")
		}
	}
	chunk := data[start : end+1]
	out := &s3.GetObjectOutput{
		Body:          io.NopCloser(strings.NewReader(string(chunk))),
		ContentLength: aws.Int64(int64(len(chunk))),
	}
	if ranged {
		out.ContentRange = aws.String(fmt.Sprintf("bytes %d-%d/%d", start, start+int64(len(chunk))-1, total))
	}
	return out, nil
}

func serviceWith(api *fakeAPI) *Service {
	registry := NewRegistryWithFactory("", func(_ context.Context, _ awsconfig.Profile, _ string) (API, error) {
		return api, nil
	})
	return NewService(registry, nil)
}

func flatKeys(keys ...string) []objectFixture {
	fixtures := make([]objectFixture, len(keys))
	for i, key := range keys {
		fixtures[i] = objectFixture{key: key, size: 10}
	}
	return fixtures
}

func TestListMergesPagesInOrder(t *testing.T) {
	api := &fakeAPI{keys: map[string][]objectFixture{
		"b": flatKeys("a/1.txt", "a/2.txt", "a/3.txt", "a/4.txt", "a/5.txt", "a/sub/deep.txt"),
	}}
	service := serviceWith(api)

	page, err := service.List(context.Background(), awsconfig.Default, "b", "a/")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if !page.HasAny {
		t.Fatal("HasAny false for a populated prefix")
	}
	if len(page.Objects) != 5 {
		t.Fatalf("objects = %d, want 5", len(page.Objects))
	}
	for i, object := range page.Objects {
		want := fmt.Sprintf("a/%d.txt", i+1)
		if object.Key != want {
			t.Errorf("objects[%d] = %q, want %q (strict page order)", i, object.Key, want)
		}
	}
	if len(page.CommonPrefixes) != 1 || page.CommonPrefixes[0] != "a/sub/" {
		t.Fatalf("prefixes = %v", page.CommonPrefixes)
	}
}

func TestListSkipsPlaceholderKeys(t *testing.T) {
	api := &fakeAPI{keys: map[string][]objectFixture{
		"b": {{key: "a/", size: 0}, {key: "a/real.txt", size: 5}, {key: "a/empty-marker/", size: 0}},
	}}
	service := serviceWith(api)

	page, err := service.List(context.Background(), awsconfig.Default, "b", "a/")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(page.Objects) != 1 || page.Objects[0].Key != "a/real.txt" {
		t.Fatalf("objects = %+v, placeholders not skipped", page.Objects)
	}
	if !page.HasAny {
		t.Fatal("placeholders still prove the path exists")
	}
}

func TestListEmptyFolderVersusNotFound(t *testing.T) {
	api := &fakeAPI{keys: map[string][]objectFixture{
		"b": {{key: "exists/", size: 0}},
	}}
	service := serviceWith(api)

	existing, err := service.List(context.Background(), awsconfig.Default, "b", "exists/")
	if err != nil {
		t.Fatal(err)
	}
	if !existing.HasAny || len(existing.Objects) != 0 {
		t.Fatalf("empty folder: HasAny=%v objects=%d", existing.HasAny, len(existing.Objects))
	}

	missing, err := service.List(context.Background(), awsconfig.Default, "b", "nope/")
	if err != nil {
		t.Fatal(err)
	}
	if missing.HasAny {
		t.Fatal("HasAny true for a path that does not exist")
	}
}

func TestListFollowsContinuationTokens(t *testing.T) {
	var keys []string
	for i := 0; i < 2500; i++ {
		keys = append(keys, fmt.Sprintf("p/%06d", i))
	}
	api := &fakeAPI{keys: map[string][]objectFixture{"b": flatKeys(keys...)}}
	service := serviceWith(api)

	page, err := service.List(context.Background(), awsconfig.Default, "b", "p/")
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Objects) != 2500 {
		t.Fatalf("objects = %d, want all pages merged", len(page.Objects))
	}
	if api.listCalls != 3 {
		t.Fatalf("listCalls = %d, want 3 pages", api.listCalls)
	}
}

func TestDeepScanStopsMidPage(t *testing.T) {
	var keys []string
	for i := 0; i < 500; i++ {
		keys = append(keys, fmt.Sprintf("base/dir%d/file%d", i%7, i))
	}
	api := &fakeAPI{keys: map[string][]objectFixture{"b": flatKeys(keys...)}}
	service := serviceWith(api)

	result, err := service.DeepScan(context.Background(), awsconfig.Default, "b", "base", 100)
	if err != nil {
		t.Fatal(err)
	}
	if !result.Truncated {
		t.Fatal("scan should be truncated at the ceiling")
	}
	if result.ScannedCount != 100 || result.FileCount != 100 {
		t.Fatalf("scanned %d files %d, want exactly the ceiling", result.ScannedCount, result.FileCount)
	}
	if result.TotalSize != 1000 {
		t.Fatalf("total = %d, want lower bound 1000", result.TotalSize)
	}
}

func TestDeepScanCountsAllAncestors(t *testing.T) {
	api := &fakeAPI{keys: map[string][]objectFixture{
		"b": flatKeys("base/a/b/c/file.txt", "base/a/x.txt"),
	}}
	service := serviceWith(api)

	result, err := service.DeepScan(context.Background(), awsconfig.Default, "b", "base/", 0)
	if err != nil {
		t.Fatal(err)
	}
	// a/, a/b/, a/b/c/ — every ancestor, not only immediate parents.
	if result.SubdirCount != 3 {
		t.Fatalf("subdirs = %d, want 3", result.SubdirCount)
	}
	if result.FileCount != 2 || result.Truncated {
		t.Fatalf("result = %+v", result)
	}
}

func TestReadRangeUsesContentRangeTotal(t *testing.T) {
	api := &fakeAPI{contentByID: map[string][]byte{"b|k": []byte("0123456789")}}
	service := serviceWith(api)

	result, err := service.ReadRange(context.Background(), awsconfig.Default, "b", "k", 0, 4)
	if err != nil {
		t.Fatal(err)
	}
	if string(result.Data) != "0123" {
		t.Fatalf("data = %q", result.Data)
	}
	if result.TotalSize == nil || *result.TotalSize != 10 || !result.Truncated {
		t.Fatalf("total=%v truncated=%v", result.TotalSize, result.Truncated)
	}

	rest, err := service.ReadRange(context.Background(), awsconfig.Default, "b", "k", 4, 10)
	if err != nil {
		t.Fatal(err)
	}
	if string(rest.Data) != "456789" || rest.Truncated {
		t.Fatalf("rest = %q truncated=%v", rest.Data, rest.Truncated)
	}
}

func TestListBucketsAllPartialFailure(t *testing.T) {
	good := &fakeAPI{buckets: []string{"one", "two"}}
	bad := &fakeAPI{listErr: errors.New("AccessDenied")}
	registry := NewRegistryWithFactory("", func(_ context.Context, profile awsconfig.Profile, _ string) (API, error) {
		if profile == "broken" {
			return bad, nil
		}
		return good, nil
	})
	service := NewService(registry, nil)

	listings, partial := service.ListBucketsAll(context.Background(), []awsconfig.Profile{"ok", "broken"})
	if len(listings) != 2 {
		t.Fatalf("listings = %+v", listings)
	}
	for _, listing := range listings {
		if listing.Profile != "ok" {
			t.Fatalf("listing from wrong profile: %+v", listing)
		}
	}
	if partial == nil || len(partial.Failures) != 1 || partial.Failures[0].Profile != "broken" {
		t.Fatalf("partial = %+v", partial)
	}
	if !strings.Contains(partial.Error(), "broken") {
		t.Fatalf("partial error = %q", partial.Error())
	}
}

func TestRetryFuncWrapsOperations(t *testing.T) {
	api := &fakeAPI{buckets: []string{"one"}}
	registry := NewRegistryWithFactory("", func(_ context.Context, _ awsconfig.Profile, _ string) (API, error) {
		return api, nil
	})
	calls := 0
	service := NewService(registry, func(ctx context.Context, _ awsconfig.Profile, op func(context.Context) error) error {
		calls++
		return op(ctx)
	})

	if _, err := service.ListKeysSample(context.Background(), awsconfig.Default, "b", 10); err != nil {
		t.Fatal(err)
	}
	if calls != 1 {
		t.Fatalf("retry wrapper called %d times, want 1", calls)
	}
}

func TestDownloadWritesFile(t *testing.T) {
	api := &fakeAPI{contentByID: map[string][]byte{"b|dir/report.csv": []byte("hello,world\n")}}
	service := serviceWith(api)

	destination := filepath.Join(t.TempDir(), "nested", "report.csv")
	if err := service.Download(context.Background(), awsconfig.Default, "b", "dir/report.csv", destination); err != nil {
		t.Fatalf("Download: %v", err)
	}
	data, err := os.ReadFile(destination)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "hello,world\n" {
		t.Fatalf("content = %q", data)
	}
}

func TestIsBucketEmpty(t *testing.T) {
	api := &fakeAPI{keys: map[string][]objectFixture{
		"full":  flatKeys("a.txt"),
		"empty": {},
	}}
	service := serviceWith(api)

	if empty, err := service.IsBucketEmpty(context.Background(), awsconfig.Default, "full"); err != nil || empty {
		t.Fatalf("full: empty=%v err=%v", empty, err)
	}
	if empty, err := service.IsBucketEmpty(context.Background(), awsconfig.Default, "empty"); err != nil || !empty {
		t.Fatalf("empty: empty=%v err=%v", empty, err)
	}
}

func TestParseContentRangeTotal(t *testing.T) {
	cases := []struct {
		header string
		total  int64
		ok     bool
	}{
		{"bytes 0-3/10", 10, true},
		{"bytes 5-9/2048", 2048, true},
		{"bytes 0-3/*", 0, false},
		{"", 0, false},
		{"garbage", 0, false},
	}
	for _, tc := range cases {
		total, ok := parseContentRangeTotal(tc.header)
		if ok != tc.ok || total != tc.total {
			t.Errorf("parseContentRangeTotal(%q) = (%d, %v), want (%d, %v)", tc.header, total, ok, tc.total, tc.ok)
		}
	}
}
