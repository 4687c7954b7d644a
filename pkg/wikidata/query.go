package wikidata

import (
	"fmt"
	"strings"
)

var literalEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`, "\r", `\r`)

func literal(s string) string {
	return `"` + literalEscaper.Replace(s) + `"`
}

// searchQuery finds items labelled like label, located (transitively) in the
// locality when one is given.
func searchQuery(label, localityQID, lang string) string {
	var locality string
	if localityQID != "" {
		locality = fmt.Sprintf("?item wdt:P131* wd:%s .", localityQID)
	}
	return fmt.Sprintf(`SELECT DISTINCT ?item ?itemLabel WHERE {
  ?item rdfs:label ?label .
  FILTER(LANG(?label) = %[2]s)
  FILTER(CONTAINS(LCASE(?label), LCASE(%[1]s)))
  %[3]s
  SERVICE wikibase:label { bd:serviceParam wikibase:language %[2]s. }
}
LIMIT %[4]d`, literal(label), literal(lang), locality, searchLimit)
}

// inceptionQuery fetches P571 values with their precision, earliest first.
func inceptionQuery(qid string) string {
	return fmt.Sprintf(`SELECT ?time ?precision WHERE {
  wd:%s p:P571/psv:P571 ?value .
  ?value wikibase:timeValue ?time ;
         wikibase:timePrecision ?precision .
}
ORDER BY ?time
LIMIT 1`, qid)
}
