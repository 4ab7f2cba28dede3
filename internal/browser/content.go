package browser

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/awss/awss/internal/awsconfig"
)

// RequestShallowStats summarizes the immediate children of a prefix
// and reports them as a notification.
func (c *Controller) RequestShallowStats(ctx context.Context, target Context) {
	c.async(func() {
		page, err := c.store.List(ctx, target.Profile, target.Bucket, target.Prefix)
		if err != nil {
			c.emit.Notify(fmt.Sprintf("stats failed for %s: %v", target, err), SeverityError)
			return
		}
		var total int64
		for _, object := range page.Objects {
			total += object.Size
		}
		c.emit.Notify(fmt.Sprintf("%s: %d folders, %d files, %s",
			target, len(page.CommonPrefixes), len(page.Objects), FormatSize(total)), SeverityInfo)
	})
}

// RequestDeepScan walks everything under a prefix and reports the
// totals. When the scan hits its ceiling the figures are lower bounds.
func (c *Controller) RequestDeepScan(ctx context.Context, target Context) {
	c.async(func() {
		result, err := c.store.DeepScan(ctx, target.Profile, target.Bucket, target.Prefix, c.opts.DeepScanMaxKeys)
		if err != nil {
			c.emit.Notify(fmt.Sprintf("scan failed for %s: %v", target, err), SeverityError)
			return
		}
		qualifier := ""
		if result.Truncated {
			qualifier = ">= "
		}
		message := fmt.Sprintf("%s: %s%d files in %s%d folders, %s%s",
			target, qualifier, result.FileCount, qualifier, result.SubdirCount,
			qualifier, FormatSize(result.TotalSize))
		if result.LatestModified != nil {
			message += ", newest " + result.LatestModified.Format("2006-01-02 15:04")
		}
		severity := SeverityInfo
		if result.Truncated {
			severity = SeverityWarning
		}
		c.emit.Notify(message, severity)
	})
}

// RequestPreview loads the first chunk of an object into the preview
// pane. A newer preview request discards this one's result.
func (c *Controller) RequestPreview(ctx context.Context, key string) {
	c.mu.Lock()
	c.previewToken++
	token := c.previewToken
	view := c.current
	c.previewProfile = view.Profile
	c.mu.Unlock()
	if view.IsBucketList() {
		return
	}

	c.async(func() {
		result, err := c.store.ReadRange(ctx, view.Profile, view.Bucket, key, 0, c.opts.PreviewBytes)
		if err != nil {
			c.emit.Notify(fmt.Sprintf("preview failed for %s: %v", key, err), SeverityError)
			return
		}
		c.mu.Lock()
		if token != c.previewToken {
			c.mu.Unlock()
			return
		}
		c.preview = Preview{
			Bucket:    view.Bucket,
			Key:       key,
			Data:      result.Data,
			TotalSize: result.TotalSize,
			Truncated: result.Truncated,
			Offset:    int64(len(result.Data)),
		}
		preview := c.preview
		c.mu.Unlock()
		c.emit.PreviewUpdated(preview)
	})
}

// RequestMorePreview appends the next chunk to the current preview.
// No-op when nothing is previewed or the object is fully loaded.
func (c *Controller) RequestMorePreview(ctx context.Context) {
	c.mu.Lock()
	if c.preview.Key == "" || !c.preview.Truncated {
		c.mu.Unlock()
		return
	}
	token := c.previewToken
	profile := c.previewProfile
	bucket := c.preview.Bucket
	key := c.preview.Key
	start := c.preview.Offset
	c.mu.Unlock()

	c.async(func() {
		result, err := c.store.ReadRange(ctx, profile, bucket, key, start, c.opts.PreviewBytes)
		if err != nil {
			c.emit.Notify(fmt.Sprintf("preview failed for %s: %v", key, err), SeverityError)
			return
		}
		c.mu.Lock()
		if token != c.previewToken || c.preview.Key != key {
			c.mu.Unlock()
			return
		}
		c.preview.Data = append(c.preview.Data, result.Data...)
		c.preview.Offset += int64(len(result.Data))
		c.preview.Truncated = result.Truncated
		if result.TotalSize != nil {
			c.preview.TotalSize = result.TotalSize
		}
		preview := c.preview
		c.mu.Unlock()
		c.emit.PreviewUpdated(preview)
	})
}

// Download fetches one object from the current bucket into the
// download directory.
func (c *Controller) Download(ctx context.Context, key string) {
	c.mu.Lock()
	view := c.current
	c.mu.Unlock()
	if view.IsBucketList() {
		return
	}

	c.async(func() {
		destination := filepath.Join(c.opts.DownloadDir, DisplaySegment(key))
		if err := c.store.Download(ctx, view.Profile, view.Bucket, key, destination); err != nil {
			c.emit.Notify(fmt.Sprintf("download failed for %s: %v", key, err), SeverityError)
			return
		}
		c.emit.Notify(fmt.Sprintf("downloaded %s to %s", key, destination), SeverityInfo)
	})
}

// DownloadMany fetches a set of objects sequentially and reports a
// summary.
func (c *Controller) DownloadMany(ctx context.Context, keys []string) {
	c.mu.Lock()
	view := c.current
	c.mu.Unlock()
	if view.IsBucketList() || len(keys) == 0 {
		return
	}

	c.async(func() {
		failed := 0
		for _, key := range keys {
			destination := filepath.Join(c.opts.DownloadDir, DisplaySegment(key))
			if err := c.store.Download(ctx, view.Profile, view.Bucket, key, destination); err != nil {
				failed++
				c.emit.Notify(fmt.Sprintf("download failed for %s: %v", key, err), SeverityError)
			}
		}
		if failed == 0 {
			c.emit.Notify(fmt.Sprintf("downloaded %d objects to %s", len(keys), c.opts.DownloadDir), SeverityInfo)
		} else {
			c.emit.Notify(fmt.Sprintf("downloaded %d of %d objects (%d failed)",
				len(keys)-failed, len(keys), failed), SeverityWarning)
		}
	})
}

// DownloadPrefix downloads everything under a prefix, recreating the
// relative directory layout under the download directory.
func (c *Controller) DownloadPrefix(ctx context.Context, target Context) {
	if target.IsBucketList() {
		return
	}
	c.async(func() {
		objects, err := c.store.ListRecursive(ctx, target.Profile, target.Bucket, target.Prefix)
		if err != nil {
			c.emit.Notify(fmt.Sprintf("download failed for %s: %v", target, err), SeverityError)
			return
		}
		if len(objects) == 0 {
			c.emit.Notify(fmt.Sprintf("nothing to download under %s", target), SeverityWarning)
			return
		}
		root := filepath.Join(c.opts.DownloadDir, downloadRootName(target))
		failed := 0
		for _, object := range objects {
			destination := filepath.Join(root, filepath.FromSlash(relativeTo(object.Key, target.Prefix)))
			if err := c.store.Download(ctx, target.Profile, target.Bucket, object.Key, destination); err != nil {
				failed++
				c.emit.Notify(fmt.Sprintf("download failed for %s: %v", object.Key, err), SeverityError)
			}
		}
		if failed == 0 {
			c.emit.Notify(fmt.Sprintf("downloaded %d objects to %s", len(objects), root), SeverityInfo)
		} else {
			c.emit.Notify(fmt.Sprintf("downloaded %d of %d objects (%d failed)",
				len(objects)-failed, len(objects), failed), SeverityWarning)
		}
	})
}

func downloadRootName(target Context) string {
	if target.Prefix == "" {
		return target.Bucket
	}
	return DisplaySegment(target.Prefix)
}

func relativeTo(key, prefix string) string {
	if prefix != "" && strings.HasPrefix(key, prefix) {
		return key[len(prefix):]
	}
	return key
}

// ProfileFor returns the profile a bucket resolves to, for display.
func (c *Controller) ProfileFor(bucket string) (awsconfig.Profile, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	record, ok := c.records[bucket]
	return record.Profile, ok
}
