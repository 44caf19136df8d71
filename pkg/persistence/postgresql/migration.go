package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE runs (
				id VARCHAR(255) PRIMARY KEY,
				workflow_name VARCHAR(255) NOT NULL,
				workflow_id VARCHAR(255),
				server TEXT NOT NULL,
				history_name TEXT NOT NULL,
				history_id VARCHAR(255),
				invocation_id VARCHAR(255),
				state VARCHAR(50) NOT NULL,
				error_message TEXT,
				staging_dir TEXT,
				harvest BOOLEAN NOT NULL DEFAULT false,
				cleaned BOOLEAN NOT NULL DEFAULT false,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_runs_state ON runs(state);
			CREATE INDEX idx_runs_created_at ON runs(created_at);
		`,
		2: `
			-- the janitor scans for runs still owning a history
			CREATE INDEX idx_runs_owned_history ON runs(updated_at) WHERE history_id IS NOT NULL AND cleaned = false;
		`,
	}
}
