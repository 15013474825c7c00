package firestore

import (
	"cloud.google.com/go/firestore"

	shared "github.com/fitglue/heatmap/pkg"
	"github.com/fitglue/heatmap/pkg/types"
)

type Client struct {
	fs *firestore.Client
}

func NewClient(client *firestore.Client) *Client {
	return &Client{fs: client}
}

func (c *Client) Close() error {
	return c.fs.Close()
}

// HeatmapSpecs holds one composition state document per bike model: heatmap_specs/{model}
func (c *Client) HeatmapSpecs() *Collection[types.HeatmapState] {
	return &Collection[types.HeatmapState]{
		Ref:           c.fs.Collection(shared.CollectionHeatmapSpecs),
		ToFirestore:   HeatmapStateToFirestore,
		FromFirestore: FirestoreToHeatmapState,
	}
}

// HeatmapIndexes holds the merged activity start times per bike model: heatmap_index/{model}
func (c *Client) HeatmapIndexes() *Collection[types.ActivityDateIndex] {
	return &Collection[types.ActivityDateIndex]{
		Ref:           c.fs.Collection(shared.CollectionHeatmapIndex),
		ToFirestore:   ActivityIndexToFirestore,
		FromFirestore: FirestoreToActivityIndex,
	}
}

// Cursors holds the processed-files manifest: cursors/storage_cursor
func (c *Client) Cursors() *Collection[types.ProcessedManifest] {
	return &Collection[types.ProcessedManifest]{
		Ref:           c.fs.Collection(shared.CollectionCursors),
		ToFirestore:   ManifestToFirestore,
		FromFirestore: FirestoreToManifest,
	}
}

// Switches holds runtime toggles that operators flip in the console: switches/{name}
func (c *Client) Switches() *Collection[types.RuntimeSwitch] {
	return &Collection[types.RuntimeSwitch]{
		Ref:           c.fs.Collection(shared.CollectionSwitches),
		ToFirestore:   SwitchToFirestore,
		FromFirestore: FirestoreToSwitch,
	}
}

// DownloadLinks are short-lived records resolved by the frontend: download_links/{id}
func (c *Client) DownloadLinks() *Collection[types.DownloadLink] {
	return &Collection[types.DownloadLink]{
		Ref:           c.fs.Collection(shared.CollectionDownloadLinks),
		ToFirestore:   DownloadLinkToFirestore,
		FromFirestore: FirestoreToDownloadLink,
	}
}

// Messages returns one of the message idempotency collections
// (processed_messages or dropbox_messages).
func (c *Client) Messages(collection string) *Collection[types.MessageRecord] {
	return &Collection[types.MessageRecord]{
		Ref:           c.fs.Collection(collection),
		ToFirestore:   MessageToFirestore,
		FromFirestore: FirestoreToMessage,
	}
}
