package namepool

import "strconv"

// Composers is the themed name list agents are drawn from: classical
// composers, matching the project's own name (debussy). ~70 entries so
// collisions are rare at the default fleet cap.
var Composers = []string{
	"debussy", "ravel", "satie", "faure", "saintsaens", "berlioz", "bizet",
	"franck", "chausson", "duparc", "messiaen", "poulenc", "milhaud",
	"honegger", "ibert", "dutilleux", "boulez", "varese", "chabrier",
	"bach", "handel", "vivaldi", "telemann", "scarlatti", "corelli",
	"haydn", "mozart", "beethoven", "schubert", "mendelssohn", "schumann",
	"chopin", "liszt", "brahms", "wagner", "bruckner", "verdi", "puccini",
	"rossini", "donizetti", "bellini", "tchaikovsky", "mussorgsky",
	"borodin", "rimsky", "glinka", "rachmaninoff", "scriabin",
	"prokofiev", "shostakovich", "stravinsky", "sibelius", "grieg",
	"nielsen", "dvorak", "smetana", "janacek", "bartok", "kodaly",
	"elgar", "vaughanwilliams", "holst", "britten", "walton",
	"copland", "barber", "ives", "gershwin", "bernstein", "glass",
	"reich", "adams", "part", "gorecki",
}

// OverflowName formats a fallback name when the themed pool is
// exhausted: "<role>-<n>".
func OverflowName(role string, n int) string {
	return role + "-" + strconv.Itoa(n)
}
