package postgres

const schemaSQL = `
CREATE TABLE IF NOT EXISTS landing_journal (
	id TEXT PRIMARY KEY,
	tx_hash TEXT,
	network TEXT NOT NULL,
	chain_id BIGINT NOT NULL,
	kind TEXT NOT NULL,
	status TEXT NOT NULL,
	from_address TEXT NOT NULL,
	to_address TEXT NOT NULL,
	nonce BIGINT NOT NULL,
	token TEXT,
	amount TEXT,
	block_number BIGINT,
	gas_used BIGINT,
	explorer_url TEXT,
	error TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),

	CONSTRAINT landing_journal_chain_id_pos CHECK (chain_id > 0),
	CONSTRAINT landing_journal_nonce_nonneg CHECK (nonce >= 0)
);

CREATE INDEX IF NOT EXISTS landing_journal_updated_idx ON landing_journal (updated_at DESC);
CREATE INDEX IF NOT EXISTS landing_journal_tx_hash_idx ON landing_journal (tx_hash);
`
