// Package browser is the navigation state machine behind the
// interactive views: the bucket list, the prefix tree, the content
// rows, and the preview pane.
package browser

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/awss/awss/internal/access"
	"github.com/awss/awss/internal/auth"
	"github.com/awss/awss/internal/awsconfig"
	"github.com/awss/awss/internal/bucketcache"
	"github.com/awss/awss/internal/logging"
	"github.com/awss/awss/internal/prefs"
	"github.com/awss/awss/internal/storage"
)

// Storage is the slice of the storage service the controller drives.
type Storage interface {
	ListBucketsAll(ctx context.Context, profiles []awsconfig.Profile) ([]storage.BucketListing, *storage.PartialError)
	List(ctx context.Context, profile awsconfig.Profile, bucket, prefix string) (storage.ListingPage, error)
	ListPrefixes(ctx context.Context, profile awsconfig.Profile, bucket, prefix string) ([]string, error)
	DeepScan(ctx context.Context, profile awsconfig.Profile, bucket, prefix string, maxKeys int) (storage.DeepScanResult, error)
	ReadRange(ctx context.Context, profile awsconfig.Profile, bucket, key string, start int64, maxBytes int) (storage.RangeResult, error)
	ListRecursive(ctx context.Context, profile awsconfig.Profile, bucket, prefix string) ([]storage.ObjectEntry, error)
	Download(ctx context.Context, profile awsconfig.Profile, bucket, key, destination string) error
}

// Resolver picks one profile per bucket from the raw listings.
type Resolver interface {
	Resolve(ctx context.Context, listings []storage.BucketListing, progress access.ProgressFunc) []access.BucketRecord
}

// Options tunes the controller.
type Options struct {
	Profiles        []awsconfig.Profile
	DeepScanMaxKeys int
	PreviewBytes    int
	DownloadDir     string
	DisableCache    bool
}

// Controller owns the navigation state. All exported commands are safe
// for concurrent use; network work runs in goroutines and results are
// applied only if no newer command superseded them (last request wins).
type Controller struct {
	store    Storage
	resolver Resolver
	cache    *bucketcache.Cache
	prefs    *prefs.Store
	emit     Emitter
	opts     Options

	mu      sync.Mutex
	wg      sync.WaitGroup
	tree    *Tree
	history *History

	records  map[string]access.BucketRecord
	order    []string
	listedBy map[string][]awsconfig.Profile

	current        Context
	contentToken   uint64
	previewToken   uint64
	preview        Preview
	previewProfile awsconfig.Profile
}

// New creates a Controller. cache and prefsStore may be nil.
func New(store Storage, resolver Resolver, cache *bucketcache.Cache, prefsStore *prefs.Store, emit Emitter, opts Options) *Controller {
	if opts.PreviewBytes <= 0 {
		opts.PreviewBytes = 4096
	}
	if len(opts.Profiles) == 0 {
		opts.Profiles = []awsconfig.Profile{awsconfig.Default}
	}
	return &Controller{
		store:    store,
		resolver: resolver,
		cache:    cache,
		prefs:    prefsStore,
		emit:     emit,
		opts:     opts,
		tree:     NewTree(),
		history:  NewHistory(),
		records:  make(map[string]access.BucketRecord),
		listedBy: make(map[string][]awsconfig.Profile),
	}
}

// Wait blocks until all in-flight background work finishes.
func (c *Controller) Wait() { c.wg.Wait() }

// Current returns the context the content view shows.
func (c *Controller) Current() Context {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Records returns the resolved bucket records in listing order.
func (c *Controller) Records() []access.BucketRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]access.BucketRecord, 0, len(c.order))
	for _, name := range c.order {
		out = append(out, c.records[name])
	}
	return out
}

func (c *Controller) async(fn func()) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		fn()
	}()
}

func (c *Controller) bumpContentLocked() uint64 {
	c.contentToken++
	return c.contentToken
}

// Refresh loads the bucket list: from the cache unless force is set or
// caching is disabled, otherwise by listing all profiles and resolving
// access live, saving the result back to the cache. A snapshot that
// only failed the TTL check is shown while the live resolution runs.
func (c *Controller) Refresh(ctx context.Context, force bool) {
	c.mu.Lock()
	token := c.bumpContentLocked()
	c.mu.Unlock()

	c.async(func() {
		if !force && !c.opts.DisableCache && c.cache != nil {
			if records, ok := c.cache.Load(time.Now()); ok {
				c.applyRecords(token, records, nil, true)
				return
			}
			// An aged snapshot is still better than an empty screen:
			// show it while the live resolution runs and replaces it.
			if records, ok := c.cache.LoadIgnoreTTL(time.Now()); ok {
				c.applyRecords(token, records, nil, true)
			}
		}

		listings, partial := c.store.ListBucketsAll(ctx, c.opts.Profiles)
		if partial != nil {
			c.emit.Notify(fmt.Sprintf("some profiles failed to list buckets: %s",
				strings.Join(partial.Profiles(), ", ")), SeverityWarning)
		}
		records := c.resolver.Resolve(ctx, listings, c.emit.ResolutionProgress)
		c.applyRecords(token, records, listings, false)

		if !c.opts.DisableCache && c.cache != nil {
			if err := c.cache.Save(records, time.Now()); err != nil {
				logging.Warn("failed to save bucket cache", zap.Error(err))
			}
		}
	})
}

func (c *Controller) applyRecords(token uint64, records []access.BucketRecord, listings []storage.BucketListing, fromCache bool) {
	c.mu.Lock()
	if token != c.contentToken {
		c.mu.Unlock()
		return
	}
	c.records = make(map[string]access.BucketRecord, len(records))
	c.order = c.order[:0]
	for _, record := range records {
		c.records[record.Name] = record
		c.order = append(c.order, record.Name)
		c.tree.EnsurePath(Context{Profile: record.Profile, Bucket: record.Name})
	}
	c.listedBy = make(map[string][]awsconfig.Profile, len(records))
	for _, listing := range listings {
		profiles := c.listedBy[listing.Name]
		if !containsProfile(profiles, listing.Profile) {
			c.listedBy[listing.Name] = append(profiles, listing.Profile)
		}
	}
	c.current = Context{}
	c.history.Record(Context{})
	rows := c.bucketRowsLocked()
	children := c.tree.Root().Children()
	canBack, canForward := c.history.CanBack(), c.history.CanForward()
	c.mu.Unlock()

	c.emit.TreeChildrenUpdated(Context{}, children)
	c.emit.RowsUpdated(Context{}, rows)
	c.emit.HistoryState(canBack, canForward)
	if fromCache {
		c.emit.Notify(fmt.Sprintf("%d buckets loaded from cache", len(records)), SeverityInfo)
	} else {
		c.emit.Notify(fmt.Sprintf("%d buckets resolved", len(records)), SeverityInfo)
	}
}

func containsProfile(profiles []awsconfig.Profile, profile awsconfig.Profile) bool {
	for _, p := range profiles {
		if p == profile {
			return true
		}
	}
	return false
}

func (c *Controller) bucketRowsLocked() []Row {
	var filters prefs.Filters
	if c.prefs != nil {
		filters = c.prefs.Filters()
	}
	rows := make([]Row, 0, len(c.order))
	for _, name := range c.order {
		record := c.records[name]
		if filters.HideNoView && record.Access.Rank() == 0 {
			continue
		}
		if filters.HideNoDownload && record.Access == access.NoDownload {
			continue
		}
		if filters.HideEmpty && record.IsEmpty {
			continue
		}
		favorite := c.prefs != nil && c.prefs.IsFavorite(name)
		if filters.OnlyFavorites && !favorite {
			continue
		}
		rows = append(rows, Row{
			Kind:     RowBucket,
			Name:     name,
			Key:      name,
			Profile:  record.Profile,
			Access:   record.Access,
			IsEmpty:  record.IsEmpty,
			Favorite: favorite,
		})
	}
	return rows
}

// ShowBucketList switches the content view back to the bucket list.
func (c *Controller) ShowBucketList() {
	c.mu.Lock()
	c.bumpContentLocked()
	c.current = Context{}
	c.history.Record(Context{})
	rows := c.bucketRowsLocked()
	canBack, canForward := c.history.CanBack(), c.history.CanForward()
	c.mu.Unlock()

	c.emit.RowsUpdated(Context{}, rows)
	c.emit.HistoryState(canBack, canForward)
}

// Navigate enters a bucket or a prefix. Missing tree nodes are created
// speculatively and removed again if the listing proves the path wrong.
func (c *Controller) Navigate(ctx context.Context, target Context) {
	if target.IsBucketList() {
		c.ShowBucketList()
		return
	}
	c.mu.Lock()
	token := c.bumpContentLocked()
	_, created := c.tree.EnsurePath(target)
	c.mu.Unlock()

	c.async(func() { c.enter(ctx, token, target, created) })
}

// NavigatePath parses a typed path and navigates to it using the
// bucket's resolved profile.
func (c *Controller) NavigatePath(ctx context.Context, raw string) {
	bucket, prefix, err := ParsePath(raw)
	if err != nil {
		c.emit.Notify(fmt.Sprintf("invalid path %q", raw), SeverityWarning)
		return
	}
	c.mu.Lock()
	record, ok := c.records[bucket]
	c.mu.Unlock()
	if !ok {
		c.emit.Notify(fmt.Sprintf("unknown bucket %q", bucket), SeverityWarning)
		return
	}
	c.Navigate(ctx, Context{Profile: record.Profile, Bucket: bucket, Prefix: prefix})
}

func (c *Controller) enter(ctx context.Context, token uint64, target Context, created []*Node) {
	profile := target.Profile
	page, err := c.store.List(ctx, profile, target.Bucket, target.Prefix)

	switched := false
	if err != nil && target.Prefix == "" && !auth.IsSessionExpired(err) {
		// The remembered profile may have lost access to this bucket.
		// Try the other profiles that saw it before giving up.
		for _, candidate := range c.candidatesFor(target.Bucket, profile) {
			candidatePage, candidateErr := c.store.List(ctx, candidate, target.Bucket, "")
			if candidateErr == nil {
				logging.Info("bucket reachable through a different profile",
					zap.String("bucket", target.Bucket),
					zap.String("profile", candidate.Label()))
				profile, page, err, switched = candidate, candidatePage, nil, true
				break
			}
		}
	}

	if err != nil {
		c.failNavigation(token, target, created,
			fmt.Sprintf("cannot open %s: %v", target, err), SeverityError)
		return
	}
	if !page.HasAny && target.Prefix != "" {
		c.failNavigation(token, target, created,
			fmt.Sprintf("path not found: %s", target), SeverityWarning)
		return
	}

	c.mu.Lock()
	if token != c.contentToken {
		c.mu.Unlock()
		return
	}
	if switched {
		c.switchProfileLocked(target.Bucket, target.Profile, profile)
		target.Profile = profile
	}
	node, ok := c.tree.Lookup(target)
	if !ok {
		node, _ = c.tree.EnsurePath(target)
	}
	c.tree.MergeChildren(node, page.CommonPrefixes)
	node.Loaded = true
	c.current = target
	c.history.Record(target)
	rows := contentRows(page)
	children := node.Children()
	canBack, canForward := c.history.CanBack(), c.history.CanForward()
	level := c.records[target.Bucket].Access
	c.mu.Unlock()

	c.emit.TreeChildrenUpdated(target, children)
	c.emit.RowsUpdated(target, rows)
	c.emit.HistoryState(canBack, canForward)
	c.emit.ProfileIndicator(target.Bucket, target.Profile, level)
	if switched {
		c.emit.Notify(fmt.Sprintf("profile for %s switched to %s",
			target.Bucket, profile.Label()), SeverityWarning)
		c.persistRecords()
	}
}

// failNavigation rolls back speculative nodes and leaves the previous
// view in place. For a navigation into an already-known node the error
// is surfaced as an inline row instead. The rollback is unconditional:
// even when a newer command superseded this navigation, the nodes it
// created speculatively must not stay registered.
func (c *Controller) failNavigation(token uint64, target Context, created []*Node, message string, severity Severity) {
	c.mu.Lock()
	speculative := len(created) > 0
	if speculative {
		c.tree.Remove(created)
	}
	if token != c.contentToken {
		// A newer command owns the view and the history now; only the
		// rollback above applies.
		c.mu.Unlock()
		return
	}
	c.history.ClearSuppression()
	c.mu.Unlock()

	if !speculative && severity == SeverityError {
		c.emit.RowsUpdated(target, []Row{{Kind: RowError, Message: message}})
	}
	c.emit.Notify(message, severity)
}

// switchProfileLocked re-keys a bucket's subtree and record after its
// working profile changed.
func (c *Controller) switchProfileLocked(bucket string, from, to awsconfig.Profile) {
	c.tree.SwitchBucketProfile(bucket, from, to)
	if record, ok := c.records[bucket]; ok {
		record.Profile = to
		c.records[bucket] = record
	}
}

// candidatesFor returns the profiles to try when a bucket's remembered
// profile stops working: the profiles that listed the bucket, falling
// back to all configured ones, non-default first, configuration order
// within each group.
func (c *Controller) candidatesFor(bucket string, exclude awsconfig.Profile) []awsconfig.Profile {
	c.mu.Lock()
	source := c.listedBy[bucket]
	if len(source) == 0 {
		source = c.opts.Profiles
	}
	c.mu.Unlock()

	var nonDefault, defaults []awsconfig.Profile
	for _, profile := range source {
		if profile == exclude {
			continue
		}
		if profile.IsDefault() {
			defaults = append(defaults, profile)
		} else {
			nonDefault = append(nonDefault, profile)
		}
	}
	return append(nonDefault, defaults...)
}

func (c *Controller) persistRecords() {
	if c.opts.DisableCache || c.cache == nil {
		return
	}
	c.mu.Lock()
	records := make([]access.BucketRecord, 0, len(c.order))
	for _, name := range c.order {
		records = append(records, c.records[name])
	}
	c.mu.Unlock()
	if err := c.cache.Save(records, time.Now()); err != nil {
		logging.Warn("failed to save bucket cache", zap.Error(err))
	}
}

// Up navigates one level towards the bucket list.
func (c *Controller) Up(ctx context.Context) {
	c.mu.Lock()
	current := c.current
	c.mu.Unlock()

	switch {
	case current.IsBucketList():
	case current.Prefix == "":
		c.ShowBucketList()
	default:
		c.Navigate(ctx, Context{
			Profile: current.Profile,
			Bucket:  current.Bucket,
			Prefix:  ParentPrefix(current.Prefix),
		})
	}
}

// Back replays the previous history entry.
func (c *Controller) Back(ctx context.Context) {
	c.mu.Lock()
	target, ok := c.history.Back()
	c.mu.Unlock()
	if !ok {
		return
	}
	c.Navigate(ctx, target)
}

// Forward replays the next history entry.
func (c *Controller) Forward(ctx context.Context) {
	c.mu.Lock()
	target, ok := c.history.Forward()
	c.mu.Unlock()
	if !ok {
		return
	}
	c.Navigate(ctx, target)
}

// ExpandNode loads a tree node's children for display. A node already
// expanded once answers from memory.
func (c *Controller) ExpandNode(ctx context.Context, target Context) {
	c.mu.Lock()
	if node, ok := c.tree.Lookup(target); ok && node.Loaded {
		children := node.Children()
		c.mu.Unlock()
		c.emit.TreeChildrenUpdated(target, children)
		return
	}
	c.mu.Unlock()

	c.async(func() {
		prefixes, err := c.store.ListPrefixes(ctx, target.Profile, target.Bucket, target.Prefix)
		if err != nil {
			c.emit.Notify(fmt.Sprintf("cannot expand %s: %v", target, err), SeverityError)
			return
		}
		c.mu.Lock()
		node, _ := c.tree.EnsurePath(target)
		c.tree.MergeChildren(node, prefixes)
		node.Loaded = true
		children := node.Children()
		c.mu.Unlock()
		c.emit.TreeChildrenUpdated(target, children)
	})
}

// SetFilters updates the bucket-list filters and re-renders the list.
func (c *Controller) SetFilters(filters prefs.Filters) {
	if c.prefs == nil {
		return
	}
	if err := c.prefs.SetFilters(filters); err != nil {
		logging.Warn("failed to save preferences", zap.Error(err))
	}
	c.refreshBucketRows()
}

// ToggleFavorite flips a bucket's favorite mark and re-renders the
// list.
func (c *Controller) ToggleFavorite(bucket string) {
	if c.prefs == nil {
		return
	}
	if _, err := c.prefs.ToggleFavorite(bucket); err != nil {
		logging.Warn("failed to save preferences", zap.Error(err))
	}
	c.refreshBucketRows()
}

func (c *Controller) refreshBucketRows() {
	c.mu.Lock()
	if !c.current.IsBucketList() {
		c.mu.Unlock()
		return
	}
	rows := c.bucketRowsLocked()
	c.mu.Unlock()
	c.emit.RowsUpdated(Context{}, rows)
}

func contentRows(page storage.ListingPage) []Row {
	rows := make([]Row, 0, len(page.CommonPrefixes)+len(page.Objects))
	for _, prefix := range page.CommonPrefixes {
		rows = append(rows, Row{Kind: RowDir, Name: DisplaySegment(prefix), Key: prefix})
	}
	for _, object := range page.Objects {
		rows = append(rows, Row{
			Kind:         RowObject,
			Name:         DisplaySegment(object.Key),
			Key:          object.Key,
			Size:         object.Size,
			SizeText:     FormatSize(object.Size),
			Modified:     object.LastModified,
			StorageClass: object.StorageClass,
		})
	}
	return rows
}
