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

package main

import (
	"encoding/json"
	"fmt"
	"log"

	"github.com/labsync/labsync/config"
	"github.com/spf13/cobra"
)

// configCommands prints the configuration after file, environment and defaults are applied.
// LLM keys are masked.
func configCommands() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "config outputs your instance's computed configuration",
		Run: func(cmd *cobra.Command, args []string) {
			cfg, err := config.Fetch()
			if err != nil {
				log.Fatalf("Error getting config: %v\n", err)
			}

			data, err := json.MarshalIndent(redactedConfig(*cfg), "", "    ")
			if err != nil {
				log.Fatalf("Error printing config: %v\n", err)
			}

			fmt.Println(string(data))
		},
	}
	return cmd
}

func redactedConfig(cfg config.Configuration) config.Configuration {
	mask := func(s string) string {
		if len(s) <= 4 {
			return s
		}
		return "****" + s[len(s)-4:]
	}
	keys := make([]string, len(cfg.LLM.APIKeys))
	for i, k := range cfg.LLM.APIKeys {
		keys[i] = mask(k)
	}
	cfg.LLM.APIKeys = keys
	cfg.LLM.GeminiAPIKey = mask(cfg.LLM.GeminiAPIKey)
	cfg.LLM.GeminiAPIKey2 = mask(cfg.LLM.GeminiAPIKey2)
	cfg.LLM.GeminiAPIKey3 = mask(cfg.LLM.GeminiAPIKey3)
	if cfg.Server.SecretKey != "" {
		cfg.Server.SecretKey = "****"
	}
	return cfg
}
