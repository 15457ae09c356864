package playlist

import (
	"context"
	"fmt"
	"time"
)

type seedTrack struct {
	id, title, artist, album, genre string
	duration                        int
}

var namedTracks = []seedTrack{
	{"track-1", "Bohemian Rhapsody", "Queen", "A Night at the Opera", "Rock", 355},
	{"track-2", "Back in Black", "AC/DC", "Back in Black", "Rock", 255},
	{"track-3", "Sweet Child o' Mine", "Guns N' Roses", "Appetite for Destruction", "Rock", 356},
	{"track-4", "Enter Sandman", "Metallica", "Metallica", "Rock", 331},
	{"track-5", "Smells Like Teen Spirit", "Nirvana", "Nevermind", "Rock", 301},
	{"track-6", "Paranoid Android", "Radiohead", "OK Computer", "Rock", 386},
	{"track-7", "Hotel California", "Eagles", "Hotel California", "Rock", 390},
	{"track-8", "Come As You Are", "Nirvana", "Nevermind", "Rock", 219},

	{"track-9", "Billie Jean", "Michael Jackson", "Thriller", "Pop", 294},
	{"track-10", "Blinding Lights", "The Weeknd", "After Hours", "Pop", 200},
	{"track-11", "Rolling in the Deep", "Adele", "21", "Pop", 228},
	{"track-12", "Bad Guy", "Billie Eilish", "When We All Fall Asleep, Where Do We Go?", "Pop", 194},
	{"track-13", "Shape of You", "Ed Sheeran", "÷", "Pop", 233},
	{"track-14", "Uptown Funk", "Mark Ronson ft. Bruno Mars", "Uptown Special", "Pop", 269},
	{"track-15", "Havana", "Camila Cabello", "Camila", "Pop", 217},
	{"track-16", "Levitating", "Dua Lipa", "Future Nostalgia", "Pop", 203},

	{"track-17", "One More Time", "Daft Punk", "Discovery", "Electronic", 320},
	{"track-18", "Harder, Better, Faster, Stronger", "Daft Punk", "Discovery", "Electronic", 224},
	{"track-19", "Around the World", "Daft Punk", "Homework", "Electronic", 435},
	{"track-20", "Strobe", "deadmau5", "For Lack of a Better Name", "Electronic", 630},
	{"track-21", "Opus", "Eric Prydz", "Opus", "Electronic", 571},
	{"track-22", "Midnight City", "M83", "Hurry Up, We're Dreaming", "Electronic", 276},
	{"track-23", "Windowlicker", "Aphex Twin", "Windowlicker", "Electronic", 365},
	{"track-24", "Xtal", "Aphex Twin", "Selected Ambient Works 85-92", "Electronic", 300},

	{"track-25", "Take Five", "The Dave Brubeck Quartet", "Time Out", "Jazz", 324},
	{"track-26", "So What", "Miles Davis", "Kind of Blue", "Jazz", 545},
	{"track-27", "Blue in Green", "Miles Davis", "Kind of Blue", "Jazz", 329},
	{"track-28", "Autumn Leaves", "Bill Evans Trio", "Portrait in Jazz", "Jazz", 300},
	{"track-29", "Take the A Train", "Duke Ellington", "The Best of Duke Ellington", "Jazz", 210},
	{"track-30", "My Favorite Things", "John Coltrane", "My Favorite Things", "Jazz", 800},
	{"track-31", "All Blues", "Miles Davis", "Kind of Blue", "Jazz", 690},
	{"track-32", "Freddie Freeloader", "Miles Davis", "Kind of Blue", "Jazz", 586},

	{"track-33", "Clair de Lune", "Claude Debussy", "Suite bergamasque", "Classical", 300},
	{"track-34", "Gymnopédie No.1", "Erik Satie", "Gymnopédies", "Classical", 210},
	{"track-35", "Nocturne Op.9 No.2", "Frédéric Chopin", "Nocturnes", "Classical", 270},
	{"track-36", "Moonlight Sonata", "Ludwig van Beethoven", "Piano Sonatas", "Classical", 360},
	{"track-37", "The Four Seasons: Spring", "Antonio Vivaldi", "The Four Seasons", "Classical", 210},
	{"track-38", "Swan Lake Theme", "Pyotr Ilyich Tchaikovsky", "Swan Lake", "Classical", 210},
	{"track-39", "Canon in D", "Johann Pachelbel", "Canon and Gigue", "Classical", 360},
	{"track-40", "Adagio for Strings", "Samuel Barber", "Adagio for Strings", "Classical", 420},
}

var generatedGenres = []string{
	"Rock", "Pop", "Electronic", "Jazz", "Classical",
	"Hip-Hop", "R&B", "Indie", "Country", "Metal",
}

// CatalogSize is the number of tracks SeedTracks returns.
const CatalogSize = 220

// SeedTracks returns the demo catalog: forty named tracks followed by
// generated fillers up to CatalogSize.
func SeedTracks() []Track {
	tracks := make([]Track, 0, CatalogSize)
	for _, s := range namedTracks {
		genre := s.genre
		tracks = append(tracks, Track{
			ID:              s.id,
			Title:           s.title,
			Artist:          s.artist,
			Album:           s.album,
			DurationSeconds: s.duration,
			Genre:           &genre,
		})
	}
	for i := len(namedTracks) + 1; i <= CatalogSize; i++ {
		genre := generatedGenres[(i-41)%len(generatedGenres)]
		tracks = append(tracks, Track{
			ID:              fmt.Sprintf("track-%d", i),
			Title:           fmt.Sprintf("Demo Track %d", i),
			Artist:          fmt.Sprintf("Artist %d", ((i-1)%50)+1),
			Album:           fmt.Sprintf("Album %d", ((i-1)%25)+1),
			DurationSeconds: 120 + (i*7)%360,
			Genre:           &genre,
		})
	}
	return tracks
}

type seedItem struct {
	trackID string
	votes   int
	addedBy string
}

var seedPlaylist = []seedItem{
	{"track-33", 4, "Classics"},
	{"track-1", 10, "User123"},
	{"track-9", 3, "User456"},
	{"track-25", 1, "JazzFan"},
	{"track-17", 0, "EDMHead"},
	{"track-5", 8, "RockLover"},
	{"track-27", -2, "SmoothJazz"},
	{"track-13", 2, "PopFan"},
	{"track-20", 6, "NightOwl"},
	{"track-29", -1, "Duke"},
}

// SeedItems returns the demo playlist at positions 1..10 with the first
// entry playing. Each item is added a millisecond after the previous one.
func SeedItems(now time.Time) []Item {
	items := make([]Item, 0, len(seedPlaylist))
	for i, s := range seedPlaylist {
		it := Item{
			TrackID:  s.trackID,
			Position: float64(i + 1),
			Votes:    s.votes,
			AddedBy:  s.addedBy,
			AddedAt:  now.Add(time.Duration(i) * time.Millisecond),
		}
		if i == 0 {
			played := now
			it.IsPlaying = true
			it.PlayedAt = &played
		}
		items = append(items, it)
	}
	return items
}

// SeedDemo replaces the contents of store with the demo catalog and playlist.
func SeedDemo(ctx context.Context, store Store, now time.Time) error {
	return store.Seed(ctx, SeedTracks(), SeedItems(now))
}
