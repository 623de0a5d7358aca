// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package annotations

import "errors"

var (
	// ErrInvalidInput is returned for an empty answer text.
	ErrInvalidInput = errors.New("text is required")
	// ErrMissingCredential is returned when the classifier user key is not configured.
	ErrMissingCredential = errors.New("reference classifier credential is not configured")
	// ErrUpstreamUnavailable is returned when the classifier cannot be reached or fails.
	ErrUpstreamUnavailable = errors.New("reference classifier unavailable")
	// ErrParseFailure is returned when a classifier response matches no known shape.
	ErrParseFailure = errors.New("unrecognized reference classifier response")
)
