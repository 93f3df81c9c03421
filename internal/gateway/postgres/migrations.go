package postgres

// schema mirrors the hosted backend tables this gateway touches.
// IMPORTANT: profiles and merchants must exist before favorites and drivers (foreign keys).
const schema = `
CREATE EXTENSION IF NOT EXISTS pgcrypto;

CREATE TABLE IF NOT EXISTS profiles (
    id TEXT PRIMARY KEY,
    email TEXT,
    full_name TEXT,
    phone TEXT,
    role TEXT NOT NULL DEFAULT 'customer',
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS merchants (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    owner_id TEXT REFERENCES profiles(id),
    owner_name TEXT,
    phone TEXT,
    name TEXT NOT NULL,
    category TEXT,
    description TEXT,
    address TEXT,
    latitude DOUBLE PRECISION,
    longitude DOUBLE PRECISION,
    image_url TEXT,
    id_card_url TEXT,
    rating DOUBLE PRECISION DEFAULT 0,
    rating_count INTEGER DEFAULT 0,
    is_open BOOLEAN NOT NULL DEFAULT FALSE,
    base_delivery_fee BIGINT NOT NULL DEFAULT 5000,
    per_km_fee BIGINT NOT NULL DEFAULT 2000,
    status TEXT NOT NULL DEFAULT 'pending',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS favorites (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    user_id TEXT NOT NULL REFERENCES profiles(id) ON DELETE CASCADE,
    merchant_id UUID NOT NULL REFERENCES merchants(id) ON DELETE CASCADE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    UNIQUE (user_id, merchant_id)
);

CREATE TABLE IF NOT EXISTS drivers (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    user_id TEXT NOT NULL REFERENCES profiles(id),
    full_name TEXT,
    phone TEXT,
    vehicle_type TEXT,
    vehicle_brand TEXT,
    plate_number TEXT,
    selfie_url TEXT,
    vehicle_photo_url TEXT,
    id_card_url TEXT,
    status TEXT NOT NULL DEFAULT 'pending',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_favorites_user_id ON favorites(user_id, created_at DESC);

-- Haversine distance in km, rounded up, times the merchant's per-km fee on top of its base fee.
CREATE OR REPLACE FUNCTION quote_delivery_fee(p_merchant_id TEXT, p_lat DOUBLE PRECISION, p_lng DOUBLE PRECISION)
RETURNS BIGINT AS $$
    SELECT m.base_delivery_fee + m.per_km_fee * CEIL(
        6371 * 2 * ASIN(SQRT(
            POWER(SIN(RADIANS(p_lat - m.latitude) / 2), 2) +
            COS(RADIANS(m.latitude)) * COS(RADIANS(p_lat)) *
            POWER(SIN(RADIANS(p_lng - m.longitude) / 2), 2)
        ))
    )::BIGINT
    FROM merchants m
    WHERE m.id::TEXT = p_merchant_id
$$ LANGUAGE SQL STABLE;
`
