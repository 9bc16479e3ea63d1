package sqlinline

// QWorkerClaimNextJob claims the oldest pending job for this worker. The
// skip-locked CTE keeps concurrent workers from ever racing on one row.
const QWorkerClaimNextJob = `--sql 0f090ea1-f5f2-4ed3-bb39-20e7be720779
with next_job as (
    select id
    from generation_jobs
    where status = 'pending'
    order by created_at asc
    for update skip locked
    limit 1
),
claimed as (
    update generation_jobs
    set status = 'processing', started_at = now()
    where id in (select id from next_job)
    returning id, user_id, source_asset_id, target_duration, style,
              crossfade_duration, crossfade_video, crossfade_audio,
              master_volume, audio_fade_in, audio_fade_out, mute_original,
              credits_charged, status, output_asset_id, output_key, error_message,
              created_at, started_at, completed_at
)
select * from claimed;
`
