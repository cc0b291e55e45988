package store

// schema creates every table the core engine owns. In production, use a
// proper migration tool; this mirrors the teacher's create-if-not-exists
// approach for a prototype-scale deployment.
const schema = `
-- ============================================================================
-- EMAILS TABLE (mailboxes)
-- ============================================================================
-- Credential columns (password, client_id, refresh_token) are stored
-- ciphertext via internal/vault; the store encrypts on write and decrypts
-- on read so every other package only ever sees plaintext.
CREATE TABLE IF NOT EXISTS emails (
	id UUID PRIMARY KEY,
	user_id UUID NOT NULL,
	address VARCHAR(254) NOT NULL,
	kind VARCHAR(10) NOT NULL CHECK (kind IN ('outlook', 'imap', 'gmail', 'qq')),
	password TEXT NOT NULL DEFAULT '',
	client_id TEXT NOT NULL DEFAULT '',
	refresh_token TEXT NOT NULL DEFAULT '',
	server VARCHAR(255) NOT NULL DEFAULT '',
	port INTEGER NOT NULL DEFAULT 0,
	ssl BOOLEAN NOT NULL DEFAULT TRUE,
	last_check_time TIMESTAMP,
	last_error TEXT NOT NULL DEFAULT '',
	realtime_enabled BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMP NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMP NOT NULL DEFAULT NOW(),
	UNIQUE(user_id, address)
);

CREATE INDEX IF NOT EXISTS idx_emails_user ON emails(user_id);
CREATE INDEX IF NOT EXISTS idx_emails_kind ON emails(kind) WHERE kind = 'outlook';

-- ============================================================================
-- MAIL_RECORDS TABLE (messages)
-- ============================================================================
-- Uniqueness of (email_id, sender, subject, received_time) makes insert
-- idempotent: two concurrent pushes for the same logical message resolve
-- to exactly one stored row (spec §4.2, testable property #1).
CREATE TABLE IF NOT EXISTS mail_records (
	id UUID PRIMARY KEY,
	email_id UUID NOT NULL REFERENCES emails(id) ON DELETE CASCADE,
	subject TEXT NOT NULL DEFAULT '',
	sender TEXT NOT NULL DEFAULT '',
	recipient TEXT NOT NULL DEFAULT '',
	content TEXT NOT NULL DEFAULT '',
	received_time TIMESTAMP NOT NULL,
	folder VARCHAR(10) NOT NULL DEFAULT 'INBOX',
	has_attachments BOOLEAN NOT NULL DEFAULT FALSE,
	UNIQUE(email_id, sender, subject, received_time)
);

CREATE INDEX IF NOT EXISTS idx_mail_records_email_time ON mail_records(email_id, received_time DESC);

-- ============================================================================
-- ATTACHMENTS TABLE
-- ============================================================================
CREATE TABLE IF NOT EXISTS attachments (
	id UUID PRIMARY KEY,
	mail_id UUID NOT NULL REFERENCES mail_records(id) ON DELETE CASCADE,
	filename TEXT NOT NULL DEFAULT '',
	content_type TEXT NOT NULL DEFAULT '',
	size INTEGER NOT NULL DEFAULT 0,
	content BYTEA
);

CREATE INDEX IF NOT EXISTS idx_attachments_mail ON attachments(mail_id);

-- ============================================================================
-- EMAIL_PLATFORMS TABLE (set-valued platform tags)
-- ============================================================================
CREATE TABLE IF NOT EXISTS email_platforms (
	email_id UUID NOT NULL REFERENCES emails(id) ON DELETE CASCADE,
	platform_name VARCHAR(100) NOT NULL,
	platform_name_lower VARCHAR(100) NOT NULL,
	PRIMARY KEY (email_id, platform_name_lower)
);

-- ============================================================================
-- PLATFORM_RULES TABLE
-- ============================================================================
CREATE TABLE IF NOT EXISTS platform_rules (
	id UUID PRIMARY KEY,
	user_id UUID NOT NULL,
	platform_name VARCHAR(100) NOT NULL,
	sender_regex TEXT NOT NULL DEFAULT '',
	subject_regex TEXT NOT NULL DEFAULT '',
	content_regex TEXT NOT NULL DEFAULT '',
	is_enabled BOOLEAN NOT NULL DEFAULT TRUE
);

CREATE INDEX IF NOT EXISTS idx_platform_rules_user ON platform_rules(user_id);

-- ============================================================================
-- PLATFORM_CORRECTIONS TABLE
-- ============================================================================
CREATE TABLE IF NOT EXISTS platform_corrections (
	user_id UUID NOT NULL,
	sender_domain VARCHAR(255) NOT NULL,
	corrected_name VARCHAR(100) NOT NULL,
	PRIMARY KEY (user_id, sender_domain)
);

-- ============================================================================
-- SUBSCRIPTIONS TABLE
-- ============================================================================
-- At most one active subscription per (email_id, resource) — spec §4.5,
-- testable property #4.
CREATE TABLE IF NOT EXISTS subscriptions (
	subscription_id VARCHAR(255) PRIMARY KEY,
	email_id UUID NOT NULL REFERENCES emails(id) ON DELETE CASCADE,
	resource VARCHAR(255) NOT NULL,
	expiration_time TIMESTAMP NOT NULL,
	UNIQUE(email_id, resource)
);

CREATE INDEX IF NOT EXISTS idx_subscriptions_expiration ON subscriptions(expiration_time);

-- ============================================================================
-- SYSTEM_CONFIG TABLE
-- ============================================================================
CREATE TABLE IF NOT EXISTS system_config (
	key VARCHAR(100) PRIMARY KEY,
	value TEXT NOT NULL
);
`
