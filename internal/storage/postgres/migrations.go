package postgres

// schema mirrors the SQLite schema with Postgres types.
// Dates are stored as Unix seconds. A NULL materialized_at marks a pending link.
const schema = `
create table if not exists groups (
    id text primary key,
    name text not null,
    currency text not null,
    created_at bigint not null
);

create table if not exists participants (
    id text primary key,
    group_id text not null references groups(id) on delete cascade,
    name text not null,
    position integer not null,
    created_at bigint not null,
    unique (group_id, name)
);

create table if not exists obligations (
    id text primary key,
    group_id text not null references groups(id) on delete cascade,
    title text not null,
    category text not null default '',
    amount bigint not null check (amount >= 0),
    payer_id text not null references participants(id),
    occurred_on bigint not null,
    split_policy text not null,
    cadence text not null default '',
    is_reimbursement boolean not null default false,
    notes text not null default '',
    created_at bigint not null
);

create table if not exists shares (
    obligation_id text not null references obligations(id) on delete cascade,
    participant_id text not null references participants(id),
    weight bigint not null,
    position integer not null,
    primary key (obligation_id, participant_id)
);

create table if not exists attachments (
    id text primary key,
    obligation_id text not null references obligations(id) on delete cascade,
    name text not null,
    url text not null,
    created_at bigint not null
);

create table if not exists recurrence_links (
    id text primary key,
    chain_id text not null,
    group_id text not null references groups(id) on delete cascade,
    obligation_id text not null unique references obligations(id) on delete cascade,
    cadence text not null,
    next_date bigint not null,
    materialized_at bigint,
    created_at bigint not null
);

create index if not exists idx_participants_group_id on participants(group_id);
create index if not exists idx_obligations_group_id on obligations(group_id, occurred_on);
create index if not exists idx_shares_participant_id on shares(participant_id);
create index if not exists idx_attachments_obligation_id on attachments(obligation_id);
create unique index if not exists idx_recurrence_links_pending_chain
    on recurrence_links(chain_id) where materialized_at is null;
create index if not exists idx_recurrence_links_due
    on recurrence_links(group_id, next_date) where materialized_at is null;
`
