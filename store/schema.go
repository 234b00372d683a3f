package store

import "fmt"

// ClickHouse DDL. Column types, ordering keys and engines must stay exactly
// as they are: existing deployments and the range-query clients depend on
// them.
const (
	createBreachMetadataSQL = `
CREATE TABLE IF NOT EXISTS %s.breach_metadata
(
    breach_id       UInt32,
    breach_name     String,
    breach_date     Date,
    description     String
)
ENGINE = MergeTree()
ORDER BY breach_id`

	createPasswordLeaksSQL = `
CREATE TABLE IF NOT EXISTS %s.password_leaks
(
    hash_prefix     FixedString(6),
    hash_suffix     FixedString(34),
    prevalence      UInt64
)
ENGINE = SummingMergeTree()
ORDER BY (hash_prefix, hash_suffix)`

	createEmailLeaksSQL = `
CREATE TABLE IF NOT EXISTS %s.email_leaks
(
    email_prefix    FixedString(6),
    email_suffix    FixedString(34),
    breach_id       UInt32,
    version         UInt64
)
ENGINE = ReplacingMergeTree(version)
ORDER BY (email_prefix, email_suffix, breach_id)`
)

// ClickHouseSchema returns the statements that create database and its
// three tables, in execution order.
func ClickHouseSchema(database string) []string {
	return []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", database),
		fmt.Sprintf(createBreachMetadataSQL, database),
		fmt.Sprintf(createPasswordLeaksSQL, database),
		fmt.Sprintf(createEmailLeaksSQL, database),
	}
}
