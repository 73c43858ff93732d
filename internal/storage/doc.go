/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package storage manages the application's persisted files.
// A Locator decides where db.db and settings.json live, copying them once from the legacy per-user
// directory into the portable data directory when needed.
// A Store lazily opens the SQLite database behind a bounded pool, creates the managed tables and applies
// additive column migrations. Whole-store backups are zip archives holding one <table>.json array per table.
package storage
