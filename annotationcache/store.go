// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package annotationcache

import (
	"context"

	"github.com/mattermost/reference-annotator/annotations"
)

// Store holds computed results by content key. Implementations must be safe for
// concurrent use. Get reports a miss with a nil result and false.
type Store interface {
	Get(ctx context.Context, key annotations.ContentKey) (*annotations.Result, bool, error)
	Set(ctx context.Context, result *annotations.Result) error
	Delete(ctx context.Context, key annotations.ContentKey) error
	Len(ctx context.Context) (int, error)
}
