// Copyright 2025 Antfly, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateCmd_SamplingFlagRanges(t *testing.T) {
	temperature := generateCmd.Flags().Lookup("temperature")
	require.NotNil(t, temperature)
	assert.Contains(t, temperature.Usage, "(0, 2]")

	topP := generateCmd.Flags().Lookup("top-p")
	require.NotNil(t, topP)
	assert.Contains(t, topP.Usage, "(0, 1]")
}

func TestRunCmd_DefaultsMatchServer(t *testing.T) {
	listen := runCmd.Flags().Lookup("listen")
	require.NotNil(t, listen)
	assert.Equal(t, "http://0.0.0.0:5000", listen.DefValue)

	database := runCmd.Flags().Lookup("database")
	require.NotNil(t, database)
	assert.Equal(t, "database.db", database.DefValue)
}
