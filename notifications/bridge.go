package notifications

import (
	"github.com/xiaoyuanzhu-com/screenshot-taker/capture"
	"github.com/xiaoyuanzhu-com/screenshot-taker/gallery"
)

// SessionObserver turns controller events into session and screenshot
// notifications. snapshot is read after the event, outside the controller lock.
func (s *Service) SessionObserver(snapshot func() capture.Snapshot) func(capture.Event) {
	return func(ev capture.Event) {
		switch ev.Type {
		case capture.EventStateChanged:
			snap := snapshot()
			snap.State = ev.State
			s.NotifySessionState(snap)
		case capture.EventWarning:
			s.NotifySessionWarning(ev.SessionID, ev.Message)
		}
	}
}

// GalleryObserver turns store changes into gallery notifications
func (s *Service) GalleryObserver(store *gallery.Store) func(gallery.Change) {
	return func(c gallery.Change) {
		switch c.Kind {
		case gallery.ChangeAdded, gallery.ChangeUpdated:
			t := EventScreenshotAdded
			if c.Kind == gallery.ChangeUpdated {
				t = EventScreenshotUpdated
			}
			entry, ok := store.Get(c.ID)
			if !ok {
				return
			}
			s.NotifyScreenshot(t, c.ID, entry)
		case gallery.ChangeDeleted:
			s.NotifyScreenshot(EventScreenshotDeleted, c.ID, nil)
		case gallery.ChangeReordered:
			s.NotifyGallery(EventGalleryReordered, map[string]any{"ids": store.IDs()})
		case gallery.ChangeCleared:
			s.NotifyGallery(EventGalleryCleared, map[string]any{"ids": store.IDs()})
		case gallery.ChangeLoaded:
			s.NotifyGallery(EventGalleryLoaded, map[string]any{"count": store.Len()})
		}
	}
}
