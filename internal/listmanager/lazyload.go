package listmanager

import "context"

// LazyLoadManagedLists enumerates the operator's existing modlists and
// paginates each one's membership, populating the in-memory group
// index before the queue consumer starts. Called once at startup; the
// caller may allow a backlog to build while this runs since it is HTTP
// heavy.
func (m *Manager) LazyLoadManagedLists(ctx context.Context) error {
	cursor := ""
	for {
		var resp getListsResponse
		path := "app.bsky.graph.getLists?actor=" + m.clientDid + "&limit=50"
		if cursor != "" {
			path += "&cursor=" + cursor
		}
		if err := m.client.Get(ctx, path, &resp); err != nil {
			return err
		}
		for _, list := range resp.Lists {
			m.mu.Lock()
			m.listURI[list.Name] = list.URI
			m.mu.Unlock()
			if err := m.loadListMembers(ctx, list.Name, list.URI); err != nil {
				return err
			}
		}
		if resp.Cursor == "" {
			return nil
		}
		cursor = resp.Cursor
	}
}

func (m *Manager) loadListMembers(ctx context.Context, name, uri string) error {
	cursor := ""
	for {
		var resp getListResponse
		path := "app.bsky.graph.getList?list=" + uri + "&limit=50"
		if cursor != "" {
			path += "&cursor=" + cursor
		}
		if err := m.client.Get(ctx, path, &resp); err != nil {
			return err
		}
		for _, item := range resp.Items {
			m.recordMember(item.Subject.Did, name)
		}
		if resp.Cursor == "" {
			return nil
		}
		cursor = resp.Cursor
	}
}
