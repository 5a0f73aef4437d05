package reconcile

import (
	"context"
	"path"

	"github.com/mediavault/mediavault/internal/logger"
	"github.com/mediavault/mediavault/pkg/store/blob"
)

// storageScan is the result of one bounded bucket walk: the orphan paths,
// their sizes, and whether the object cap cut the walk short.
type storageScan struct {
	Paths      []string
	SizeByPath map[string]int64
	TotalBytes int64
	Scanned    int
	Truncated  bool
}

// isObject distinguishes a real object from a folder placeholder: objects
// have size metadata or a file extension.
func isObject(o blob.Object) bool {
	return o.SizeBytes > 0 || path.Ext(o.Path) != ""
}

// scanOrphanBlobs walks the bucket folder by folder and returns every
// object with no reference row in any catalog-registered owner table.
//
// The walk is an explicit work queue with a visited set, so each path is
// inspected exactly once even with duplicate listings, recursion depth is
// never a concern, and termination within the request budget is guaranteed
// by the object cap. A truncated walk is a documented limitation, not an
// error: callers needing full coverage call repeatedly.
//
// Both detect and cleanup derive their orphan set from this one function so
// that a dry run and the follow-up real run agree.
func (e *Engine) scanOrphanBlobs(ctx context.Context) (*storageScan, error) {
	scan := &storageScan{SizeByPath: make(map[string]int64)}

	queue := []string{""}
	visitedFolders := make(map[string]struct{})
	visitedObjects := make(map[string]struct{})

	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		prefix := queue[0]
		queue = queue[1:]

		if _, seen := visitedFolders[prefix]; seen {
			continue
		}
		visitedFolders[prefix] = struct{}{}

		page, err := e.blob.ListFolder(ctx, prefix)
		if err != nil {
			return nil, err
		}

		for _, folder := range page.Folders {
			if _, seen := visitedFolders[folder]; !seen {
				queue = append(queue, folder)
			}
		}

		for _, obj := range page.Objects {
			if _, seen := visitedObjects[obj.Path]; seen {
				continue
			}
			visitedObjects[obj.Path] = struct{}{}

			if !isObject(obj) {
				continue
			}

			if scan.Scanned >= e.policy.MaxScanObjects {
				scan.Truncated = true
				logger.Warn("bucket walk reached object cap",
					"cap", e.policy.MaxScanObjects,
					"orphans", len(scan.Paths))
				return scan, nil
			}
			scan.Scanned++

			referenced, err := e.rel.PathReferenced(ctx, obj.Path)
			if err != nil {
				return nil, err
			}
			if referenced {
				continue
			}

			scan.Paths = append(scan.Paths, obj.Path)
			scan.SizeByPath[obj.Path] = obj.SizeBytes
			scan.TotalBytes += obj.SizeBytes
		}
	}

	return scan, nil
}
