// Package sqlinline holds every SQL statement the service runs. Each query
// carries a --sql <uuid> marker on its first line; the runner strips it and
// uses it to correlate log lines with statements.
package sqlinline

// QInsertJob creates the job in draft: invisible to both worker intakes
// until QActivateJob flips it to pending, so a render never starts on a
// partially assembled layer set.
const QInsertJob = `--sql 49cbe803-413a-4dfd-bbc1-a5662516a90b
insert into generation_jobs (
    id, user_id, source_asset_id, target_duration, style,
    crossfade_duration, crossfade_video, crossfade_audio,
    master_volume, audio_fade_in, audio_fade_out, mute_original,
    credits_charged, status, created_at
) values (
    $1, $2, $3, $4, $5,
    $6, $7, $8,
    $9, $10, $11, $12,
    $13, 'draft', now()
)
returning id, created_at;
`

const QActivateJob = `--sql 416d7198-abc7-46cb-a3c9-a0f3cfae6b4e
update generation_jobs
set status = 'pending'
where id = $1 and status = 'draft'
returning id;
`

const QJobByID = `--sql 13e46e20-235b-483f-95ee-7bdffbcd5af8
select id, user_id, source_asset_id, target_duration, style,
       crossfade_duration, crossfade_video, crossfade_audio,
       master_volume, audio_fade_in, audio_fade_out, mute_original,
       credits_charged, status, output_asset_id, output_key, error_message,
       created_at, started_at, completed_at
from generation_jobs
where id = $1 and user_id = $2;
`

const QJobByIDAny = `--sql 09b1cc2a-a79e-499c-9e22-681c01882e1b
select id, user_id, source_asset_id, target_duration, style,
       crossfade_duration, crossfade_video, crossfade_audio,
       master_volume, audio_fade_in, audio_fade_out, mute_original,
       credits_charged, status, output_asset_id, output_key, error_message,
       created_at, started_at, completed_at
from generation_jobs
where id = $1;
`

const QListJobs = `--sql ca6d7cb2-f552-44f4-8af1-a97e9e04723b
select id, user_id, source_asset_id, target_duration, style,
       crossfade_duration, crossfade_video, crossfade_audio,
       master_volume, audio_fade_in, audio_fade_out, mute_original,
       credits_charged, status, output_asset_id, output_key, error_message,
       created_at, started_at, completed_at
from generation_jobs
where user_id = $1
order by created_at desc
limit $2 offset $3;
`

const QJobStatus = `--sql 0885f058-38b0-46a4-85e9-a6c24302dc31
select status from generation_jobs where id = $1;
`

// QCancelJob moves a job to cancelled only from a cancellable state; the
// returning clause tells the caller whether the transition happened.
const QCancelJob = `--sql eda67234-1052-4b84-a954-ccd4ff60d8e9
update generation_jobs
set status = 'cancelled', error_message = $3, completed_at = now()
where id = $1 and user_id = $2 and status in ('draft', 'pending', 'processing')
returning id;
`

// QClaimJobByID is the queue-driven claim: a compare-and-set from pending to
// processing, so a job cancelled while waiting in the queue is never run.
const QClaimJobByID = `--sql ee3ab6a5-6677-499d-9a5f-9ed20ebe9da3
update generation_jobs
set status = 'processing', started_at = now()
where id = $1 and status = 'pending'
returning id;
`

const QMarkJobCompleted = `--sql a4612f99-d8e2-4144-97a5-7d2ab38aaa7e
update generation_jobs
set status = 'completed', output_asset_id = $2, output_key = $3, completed_at = now()
where id = $1 and status = 'processing'
returning id;
`

const QMarkJobFailed = `--sql 3c229597-d14f-4825-873c-2c1a38660f97
update generation_jobs
set status = 'failed', error_message = $2, completed_at = now()
where id = $1 and status = 'processing'
returning id;
`
