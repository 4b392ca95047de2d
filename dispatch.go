/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package labsync

import (
	"context"

	"github.com/labsync/labsync/model"
)

// Dispatcher schedules a stage to run later for the given entity id.
// Dispatch must not block on the stage itself.
type Dispatcher interface {
	Dispatch(ctx context.Context, stage model.Stage, id string) error
}

// DispatcherFunc adapts a function to Dispatcher.
type DispatcherFunc func(ctx context.Context, stage model.Stage, id string) error

func (f DispatcherFunc) Dispatch(ctx context.Context, stage model.Stage, id string) error {
	return f(ctx, stage, id)
}

// NopDispatcher drops every dispatch.
type NopDispatcher struct{}

func (NopDispatcher) Dispatch(context.Context, model.Stage, string) error { return nil }
