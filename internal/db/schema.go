package db

// SchemaSQL defines the job and qa_pair tables.
const SchemaSQL = `
    -- ==========================================================================
    -- JOB TABLE
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS job SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS url ON job TYPE string;
    DEFINE FIELD IF NOT EXISTS status ON job TYPE string
        ASSERT $value IN ["queued", "processing", "completed", "failed"];
    DEFINE FIELD IF NOT EXISTS qa_count ON job TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS error ON job TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS created_at ON job TYPE datetime;
    DEFINE FIELD IF NOT EXISTS completed_at ON job TYPE option<datetime>;

    DEFINE INDEX IF NOT EXISTS job_url ON job FIELDS url UNIQUE;
    DEFINE INDEX IF NOT EXISTS job_status ON job FIELDS status;
    DEFINE INDEX IF NOT EXISTS job_created_at ON job FIELDS created_at;

    -- ==========================================================================
    -- QA_PAIR TABLE
    -- ==========================================================================
    -- seq orders pairs that share a timestamp (one insert batch).
    DEFINE TABLE IF NOT EXISTS qa_pair SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS job_id ON qa_pair TYPE string;
    DEFINE FIELD IF NOT EXISTS question ON qa_pair TYPE string;
    DEFINE FIELD IF NOT EXISTS answer ON qa_pair TYPE string;
    DEFINE FIELD IF NOT EXISTS source_url ON qa_pair TYPE string;
    DEFINE FIELD IF NOT EXISTS timestamp ON qa_pair TYPE datetime;
    DEFINE FIELD IF NOT EXISTS seq ON qa_pair TYPE int DEFAULT 0;

    DEFINE INDEX IF NOT EXISTS qa_pair_job ON qa_pair FIELDS job_id;
    DEFINE INDEX IF NOT EXISTS qa_pair_timestamp ON qa_pair FIELDS timestamp, seq;
`
