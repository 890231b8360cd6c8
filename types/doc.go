// Copyright (c) Hustler Authors.
// Licensed under the MIT License.

/*
Package types provides the shared type definitions of the hustler engine.

types is the lowest-level public package. It depends on no other hustler
package and serves as the common contract between engine, retry, llm and
config, avoiding circular imports.

Core types:

  - Message / Role: conversation messages for the LLM collaborator
  - Error / ErrorCode: structured errors with retryability and cause chain
  - JSONSchema: input contracts for task payload validation
*/
package types
