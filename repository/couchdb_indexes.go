package repository

import (
	"fmt"

	"github.com/go-resty/resty/v2"
)

// CreateShareOwnerIndex creates an index on the shares database for listing grants by grantor
func CreateShareOwnerIndex(sharesRepo Repository) error {
	indexPayload := map[string]interface{}{
		"index": map[string]interface{}{
			"fields": []map[string]interface{}{
				{"ownerUserId": "desc"},
				{"createdAt": "desc"},
			},
		},
		"name": "share-owner-created-index",
		"ddoc": "share-owner-created-index",
		"type": "json",
	}
	return postIndex(sharesRepo, indexPayload)
}

// CreateShareIdempotencyIndex supports deduplication of retried share creation
func CreateShareIdempotencyIndex(sharesRepo Repository) error {
	indexPayload := map[string]interface{}{
		"index": map[string]interface{}{
			"fields": []string{"ownerUserId", "idempotencyKey"},
		},
		"name": "share-idempotency-index",
		"ddoc": "share-idempotency-index",
		"type": "json",
	}
	return postIndex(sharesRepo, indexPayload)
}

// CreateShareExpiryIndex supports the periodic sweep of long-expired grants
func CreateShareExpiryIndex(sharesRepo Repository) error {
	indexPayload := map[string]interface{}{
		"index": map[string]interface{}{
			"fields": []map[string]interface{}{{"expiresAt": "desc"}},
		},
		"name": "share-expiry-index",
		"ddoc": "share-expiry-index",
		"type": "json",
	}
	return postIndex(sharesRepo, indexPayload)
}

func postIndex(repo Repository, indexPayload map[string]interface{}) error {
	c := repo.GetClient().(*resty.Client)
	resp, rErr := c.R().SetBody(indexPayload).Post(fmt.Sprintf("%s/%s", repo.GetDBName(), "_index"))
	if rErr != nil {
		return rErr
	}
	if resp.IsError() {
		return handleError(resp)
	}
	return nil
}
