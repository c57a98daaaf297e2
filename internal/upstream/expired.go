package upstream

import (
	"context"

	"github.com/wsuscatalog/wsuscatalog/internal/identity"
)

// ProbeExpiredRevision is the expired-update probe: given an UpdateID and
// a revision hint, it walks revisions downward from the hint looking for
// one GetUpdateData still accepts. A SOAP fault at a given revision means
// "try the previous one"; any other error aborts the probe immediately.
// The revision count reaching 0 without success returns
// (UpdateBlob{}, false, nil).
//
// window names the band (floor(hint/100)*100 + window) within which a
// match is expected; a hint of 350 with window 10 typically resolves by
// 310. The walk itself always continues to 0 so a stale hint still
// eventually succeeds or definitively fails.
func (c *Client) ProbeExpiredRevision(ctx context.Context, updateID identity.GUID, revisionHint, window int32) (UpdateBlob, bool, error) {
	revision := revisionHint

	for revision > 0 {
		select {
		case <-ctx.Done():
			return UpdateBlob{}, false, ctx.Err()
		default:
		}

		result, err := c.UpdateData(ctx, []RevisionID{{UpdateID: updateID, Revision: revision}})
		switch {
		case err == nil:
			for _, u := range result.Updates {
				if u.ID.UpdateID == updateID && u.ID.Revision == revision {
					return u, true, nil
				}
			}
			// Server accepted the call but didn't actually return this
			// revision; treat it the same as a fault and keep walking down.
		case IsSoapFault(err):
			// expected: this revision doesn't exist (any more); keep walking.
		default:
			return UpdateBlob{}, false, err
		}
		revision--
	}
	return UpdateBlob{}, false, nil
}
