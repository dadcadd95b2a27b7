// Package pagination provides cursor-based page handling for infinite queries.
//
// Infinite endpoints return one page per request. Each page announces the
// cursor of the following page under pagination.next; a missing or falsy
// value means the last page was reached. Subsequent pages are requested
// with a cursor query parameter formatted as "next.<cursor>".
//
// Example usage:
//
//	var data pagination.InfiniteData
//	data.Append(firstPage, nil)
//	if cursor, ok := data.NextPageParam(); ok {
//		url, _ := urlutil.AppendParams("/items", map[string]any{
//			pagination.CursorQueryKey: pagination.CursorParam(cursor),
//		})
//		// fetch url, then data.Append(page, cursor)
//	}
//	merged, err := pagination.MergeAs[ItemsPage](data.Pages)
//
// Pages are merged into one value: array fields are concatenated in page
// order, every other field takes the value of the latest page.
package pagination
