/*
 * split.go, part of semifit.
 *
 *
 * Copyright 2024 Raul Mera <rmera{at}chemDOThelsinkiDOTfi>
 *
 * This program is free software; you can redistribute it and/or modify
 * it under the terms of the GNU Lesser General Public License as
 * published by the Free Software Foundation; either version 2.1 of the
 * License, or (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU Lesser General
 * Public License along with this program.  If not, see
 * <http://www.gnu.org/licenses/>.
 *
 *
 * Gochem is developed at the laboratory for instruction in Swedish, Department of Chemistry,
 * University of Helsinki, Finland.
 *
 *
 */
/***Dedicated to the long life of the Ven. Khenpo Phuntzok Tenzin Rinpoche***/

package optim

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/stat/distuv"
)

//Fold is one train/test split of the indices 0..n-1.
type Fold struct {
	Train []int
	Test  []int
}

//KFold shuffles the indices 0..n-1 with the given seed and splits them in k folds. Each fold
//uses one of the k parts as test set and the rest as training set. The first n%k test sets
//have one element more than the others. Indices within a set are sorted.
func KFold(n, k int, seed uint64) ([]Fold, error) {
	if k < 2 || k > n {
		return nil, fmt.Errorf("optim/KFold: can't split %d elements in %d folds", n, k)
	}
	rng := rand.New(rand.NewPCG(seed, seed))
	perm := rng.Perm(n)
	ret := make([]Fold, k)
	start := 0
	for i := range ret {
		size := n / k
		if i < n%k {
			size++
		}
		test := append([]int(nil), perm[start:start+size]...)
		train := make([]int, 0, n-size)
		train = append(train, perm[:start]...)
		train = append(train, perm[start+size:]...)
		sort.Ints(test)
		sort.Ints(train)
		ret[i] = Fold{Train: train, Test: test}
		start += size
	}
	return ret, nil
}

//TruncatedNormal returns n values drawn from a normal distribution with mean 0 and the given
//standard deviation, redrawing any value more than two standard deviations from the mean.
//It is used to pick starting points for sampling near the start parameters.
func TruncatedNormal(n int, stddev float64, seed uint64) []float64 {
	ret := make([]float64, n)
	if stddev == 0 {
		return ret
	}
	d := distuv.Normal{Mu: 0, Sigma: math.Abs(stddev), Src: rand.NewPCG(seed, seed)}
	for i := range ret {
		v := d.Rand()
		for math.Abs(v) > 2*math.Abs(stddev) {
			v = d.Rand()
		}
		ret[i] = v
	}
	return ret
}
